package queue

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

const (
	bountyPostedEvent = `{"version":"v1","kind":"bounty_posted","platform":"1","repo":"org/demo","issue":"123"}`
	issueClosedEvent  = `{"version":"v1","kind":"issue_closed","platform":"1","repo":"org/demo","issue":"123"}`
)

func TestNewConsumer_RejectsIncompleteKafkaConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  ConsumerConfig
	}{
		{"unknown driver", ConsumerConfig{Driver: "rabbit"}},
		{"no brokers", ConsumerConfig{Driver: DriverKafka, Group: "escrow-events", Topics: []string{"bounties"}}},
		{"no group", ConsumerConfig{Driver: DriverKafka, Brokers: []string{"127.0.0.1:9092"}, Topics: []string{"bounties"}}},
		{"no topics", ConsumerConfig{Driver: DriverKafka, Brokers: []string{"127.0.0.1:9092"}, Group: "escrow-events"}},
		{"max below min", ConsumerConfig{
			Driver:        DriverKafka,
			Brokers:       []string{"127.0.0.1:9092"},
			Group:         "escrow-events",
			Topics:        []string{"bounties"},
			KafkaMinBytes: 1024,
			KafkaMaxBytes: 512,
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			c, err := NewConsumer(ctx, tc.cfg)
			if err == nil {
				t.Fatalf("expected error")
			}
			if c != nil {
				t.Fatalf("expected nil consumer on error")
			}
		})
	}
}

func TestNewProducer_RejectsIncompleteConfig(t *testing.T) {
	t.Parallel()

	for _, cfg := range []ProducerConfig{
		{Driver: "rabbit"},
		{Driver: DriverKafka},
	} {
		p, err := NewProducer(cfg)
		if err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
		if p != nil {
			t.Fatalf("expected nil producer on error")
		}
	}
}

func TestStdioConsumer_DeliversOneMessagePerLine(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewConsumer(ctx, ConsumerConfig{
		Driver:       DriverStdio,
		Reader:       strings.NewReader(bountyPostedEvent + "\n" + issueClosedEvent + "\n"),
		MaxLineBytes: 4096,
	})
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	defer func() { _ = c.Close() }()

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case m, ok := <-c.Messages():
			if !ok {
				t.Fatalf("messages channel closed early")
			}
			got = append(got, string(m.Value))
			if err := m.Ack(context.Background()); err != nil {
				t.Fatalf("Ack: %v", err)
			}
		case err := <-c.Errors():
			if err != nil {
				t.Fatalf("consumer error: %v", err)
			}
		case <-deadline:
			t.Fatalf("timeout waiting for events")
		}
	}

	if got[0] != bountyPostedEvent || got[1] != issueClosedEvent {
		t.Fatalf("unexpected events: %#v", got)
	}
}

func TestStdioProducer_WritesLineDelimitedEvents(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p, err := NewProducer(ProducerConfig{Driver: DriverStdio, Writer: &out})
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	defer func() { _ = p.Close() }()

	if err := p.Publish(context.Background(), "bounties", []byte(bountyPostedEvent)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got, want := out.String(), bountyPostedEvent+"\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestMessageAck_NoOpWithoutOffsetTracking(t *testing.T) {
	t.Parallel()

	m := Message{Topic: "bounties", Value: []byte(bountyPostedEvent)}
	if err := m.Ack(context.Background()); err != nil {
		t.Fatalf("Ack: %v", err)
	}
}

func TestKafkaTLSFromEnv(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"false", false},
		{"0", false},
		{"1", true},
		{"true", true},
		{"yes", true},
		{"on", true},
		{"  TrUe  ", true},
	}
	for _, tc := range cases {
		t.Setenv(envKafkaTLS, tc.value)
		if got := kafkaTLSFromEnv(); got != tc.want {
			t.Fatalf("kafkaTLSFromEnv with %q = %t, want %t", tc.value, got, tc.want)
		}
	}
}

func TestFetchEndsConsumer_OnlyOnShutdown(t *testing.T) {
	t.Parallel()

	if !fetchEndsConsumer(context.Canceled) {
		t.Fatalf("cancellation should end the consumer")
	}
	for _, err := range []error{io.EOF, io.ErrClosedPipe} {
		if fetchEndsConsumer(err) {
			t.Fatalf("%v should be treated as transient", err)
		}
	}
}

func TestSplitCommaList_TrimsAndDropsEmpties(t *testing.T) {
	t.Parallel()

	got := SplitCommaList(" 10.0.0.1:9092 ,, 10.0.0.2:9092 ")
	if len(got) != 2 || got[0] != "10.0.0.1:9092" || got[1] != "10.0.0.2:9092" {
		t.Fatalf("SplitCommaList = %#v", got)
	}
	if got := SplitCommaList("  "); got != nil {
		t.Fatalf("blank input = %#v, want nil", got)
	}
}
