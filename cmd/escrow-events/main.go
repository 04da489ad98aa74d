// escrow-events tails the escrow event stream and writes one JSON line per
// message to stdout. It is the ops-side counterpart to the engine's event
// publisher.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gitgig-io/ragnar/internal/events"
	"github.com/gitgig-io/ragnar/internal/queue"
)

type line struct {
	Topic     string          `json:"topic"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMain(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runMain(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("escrow-events", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	queueDriver := fs.String("queue-driver", queue.DriverKafka, "queue driver: kafka|stdio")
	queueBrokers := fs.String("queue-brokers", "", "comma-separated queue brokers (required for kafka)")
	group := fs.String("group", "escrow-events", "consumer group id")
	topics := fs.String("topics", strings.Join([]string{events.TopicBounty, events.TopicIdentity, events.TopicConfig}, ","), "comma-separated topics to tail")

	if err := fs.Parse(args); err != nil {
		return err
	}
	topicList := queue.SplitCommaList(*topics)
	if len(topicList) == 0 {
		return errors.New("--topics must name at least one topic")
	}

	consumer, err := queue.NewConsumer(ctx, queue.ConsumerConfig{
		Driver:  *queueDriver,
		Brokers: queue.SplitCommaList(*queueBrokers),
		Group:   *group,
		Topics:  topicList,
		Reader:  stdin,
	})
	if err != nil {
		return err
	}
	defer func() { _ = consumer.Close() }()

	enc := json.NewEncoder(stdout)
	errCh := consumer.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				// Keep draining buffered messages after the error
				// channel closes.
				errCh = nil
				continue
			}
			fmt.Fprintf(os.Stderr, "consumer error: %v\n", err)
		case msg, ok := <-consumer.Messages():
			if !ok {
				return nil
			}
			out := line{Topic: msg.Topic, Payload: normalizePayload(msg.Value)}
			if !msg.Timestamp.IsZero() {
				out.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
			if err := msg.Ack(ctx); err != nil {
				return err
			}
		}
	}
}

// normalizePayload passes valid JSON through untouched and wraps anything
// else as a JSON string so the output stream stays line-parseable.
func normalizePayload(value []byte) json.RawMessage {
	if json.Valid(value) {
		return json.RawMessage(value)
	}
	quoted, err := json.Marshal(string(value))
	if err != nil {
		return json.RawMessage(`""`)
	}
	return json.RawMessage(quoted)
}
