package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRun_GeneratesAndPrintsJSON(t *testing.T) {
	t.Parallel()

	keyPath := filepath.Join(t.TempDir(), "notary.key")
	var out bytes.Buffer

	if err := run([]string{"-private-key-path", keyPath}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	var v output
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if !common.IsHexAddress(v.Address) {
		t.Fatalf("address: got %q", v.Address)
	}
	if v.PrivateKeyPath != keyPath {
		t.Fatalf("private_key_path: got %q want %q", v.PrivateKeyPath, keyPath)
	}
	if !v.PrivateKeyCreated {
		t.Fatalf("expected fresh key creation")
	}

	// Second run reuses the key and reports the same address.
	var again bytes.Buffer
	if err := run([]string{"-private-key-path", keyPath}, &again); err != nil {
		t.Fatalf("second run: %v", err)
	}
	var v2 output
	if err := json.Unmarshal(again.Bytes(), &v2); err != nil {
		t.Fatalf("unmarshal second output: %v", err)
	}
	if v2.PrivateKeyCreated {
		t.Fatalf("second run recreated the key")
	}
	if v2.Address != v.Address {
		t.Fatalf("address changed: %q then %q", v.Address, v2.Address)
	}
}

func TestRun_RequiresPath(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := run(nil, &out); err == nil {
		t.Fatalf("expected error")
	}
}
