package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunMain_StdioTail(t *testing.T) {
	t.Parallel()

	stdin := strings.NewReader(`{"type":"bounty.created.v1","platform":"1"}` + "\n" + "not json\n")
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := runMain(ctx, []string{"-queue-driver", "stdio"}, stdin, &out)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("runMain: %v", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(out.Bytes()))

	if !sc.Scan() {
		t.Fatalf("missing first output line")
	}
	var first line
	if err := json.Unmarshal(sc.Bytes(), &first); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	var payload struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(first.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Type != "bounty.created.v1" {
		t.Fatalf("payload type: got %q", payload.Type)
	}

	if !sc.Scan() {
		t.Fatalf("missing second output line")
	}
	var second line
	if err := json.Unmarshal(sc.Bytes(), &second); err != nil {
		t.Fatalf("decode second line: %v", err)
	}
	var asString string
	if err := json.Unmarshal(second.Payload, &asString); err != nil {
		t.Fatalf("non-JSON payload should be wrapped as a string: %v", err)
	}
	if asString != "not json" {
		t.Fatalf("wrapped payload: got %q", asString)
	}
}

func TestRunMain_RequiresTopics(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := runMain(context.Background(), []string{"-queue-driver", "stdio", "-topics", ""}, strings.NewReader(""), &out)
	if err == nil {
		t.Fatalf("expected error")
	}
}
