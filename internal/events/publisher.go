package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Producer is the queue boundary the publisher writes to.
type Producer interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Publisher marshals event payloads and hands them to the queue producer.
type Publisher struct {
	producer Producer
}

func NewPublisher(producer Producer) (*Publisher, error) {
	if producer == nil {
		return nil, errors.New("events: nil producer")
	}
	return &Publisher{producer: producer}, nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s payload: %w", topic, err)
	}
	if err := p.producer.Publish(ctx, topic, raw); err != nil {
		return fmt.Errorf("events: publish %s: %w", topic, err)
	}
	return nil
}
