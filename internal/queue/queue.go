// Package queue carries the bounty event stream between the API process and
// downstream consumers. Kafka is the production driver; the stdio driver
// lets local runs and tests push events through the same publisher path
// without a broker.
package queue

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	DriverKafka = "kafka"
	DriverStdio = "stdio"
)

// Message is one record off the stream.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
	// Timestamp is the producer timestamp under Kafka and the local receive
	// time under stdio.
	Timestamp time.Time

	ackFn func(context.Context) error
}

// Ack commits the message on drivers that track consumer offsets. It is a
// no-op otherwise.
func (m Message) Ack(ctx context.Context) error {
	if m.ackFn == nil {
		return nil
	}
	return m.ackFn(ctx)
}

// Consumer delivers stream records asynchronously. Messages and Errors close
// when the consumer stops.
type Consumer interface {
	Messages() <-chan Message
	Errors() <-chan error
	Close() error
}

// Producer publishes records to the stream.
type Producer interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

type ConsumerConfig struct {
	Driver string

	// Kafka.
	Brokers       []string
	Group         string
	Topics        []string
	KafkaMinBytes int
	KafkaMaxBytes int

	// Stdio.
	Reader       io.Reader
	MaxLineBytes int
}

type ProducerConfig struct {
	Driver string

	// Kafka.
	Brokers      []string
	BatchTimeout time.Duration

	// Stdio.
	Writer io.Writer
}

func NewConsumer(ctx context.Context, cfg ConsumerConfig) (Consumer, error) {
	switch driverName(cfg.Driver) {
	case DriverKafka:
		return newKafkaConsumer(ctx, cfg)
	case DriverStdio:
		return newStdioConsumer(ctx, cfg)
	default:
		return nil, fmt.Errorf("queue: unsupported driver %q", cfg.Driver)
	}
}

func NewProducer(cfg ProducerConfig) (Producer, error) {
	switch driverName(cfg.Driver) {
	case DriverKafka:
		return newKafkaProducer(cfg)
	case DriverStdio:
		return newStdioProducer(cfg), nil
	default:
		return nil, fmt.Errorf("queue: unsupported driver %q", cfg.Driver)
	}
}

// An empty driver means Kafka, so production deployments need no flag.
func driverName(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return DriverKafka
	}
	return v
}

// SplitCommaList splits a comma-separated flag value, dropping empty and
// whitespace-only entries.
func SplitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return trimmed(strings.Split(s, ","))
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
