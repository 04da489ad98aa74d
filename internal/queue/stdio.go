package queue

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"
)

const maxLineBytesDefault = 1 << 20

// stdioConsumer reads newline-delimited events, one message per line.
type stdioConsumer struct {
	msgCh chan Message
	errCh chan error

	cancel context.CancelFunc
	once   sync.Once
}

func newStdioConsumer(parent context.Context, cfg ConsumerConfig) (Consumer, error) {
	in := cfg.Reader
	if in == nil {
		in = os.Stdin
	}
	maxLine := cfg.MaxLineBytes
	if maxLine <= 0 {
		maxLine = maxLineBytesDefault
	}

	ctx, cancel := context.WithCancel(parent)
	c := &stdioConsumer{
		msgCh:  make(chan Message, 64),
		errCh:  make(chan error, 8),
		cancel: cancel,
	}
	go c.run(ctx, in, maxLine)
	return c, nil
}

func (c *stdioConsumer) run(ctx context.Context, in io.Reader, maxLine int) {
	defer close(c.msgCh)
	defer close(c.errCh)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 1024), maxLine)
	for sc.Scan() {
		msg := Message{
			Value:     append([]byte(nil), sc.Bytes()...),
			Timestamp: time.Now().UTC(),
		}
		select {
		case c.msgCh <- msg:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case c.errCh <- err:
		case <-ctx.Done():
		}
	}
}

func (c *stdioConsumer) Messages() <-chan Message { return c.msgCh }

func (c *stdioConsumer) Errors() <-chan error { return c.errCh }

func (c *stdioConsumer) Close() error {
	c.once.Do(c.cancel)
	return nil
}

type stdioProducer struct {
	mu  sync.Mutex
	out io.Writer
}

func newStdioProducer(cfg ProducerConfig) Producer {
	out := cfg.Writer
	if out == nil {
		out = os.Stdout
	}
	return &stdioProducer{out: out}
}

// Publish writes the payload as one line. The topic is carried in the event
// body, so it is ignored here.
func (p *stdioProducer) Publish(_ context.Context, _ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.out.Write(payload); err != nil {
		return err
	}
	_, err := p.out.Write([]byte("\n"))
	return err
}

func (p *stdioProducer) Close() error { return nil }
