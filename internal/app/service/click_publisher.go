package service

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/tinylink/internal/app/model"
)

// JetStreamPublisher is the slice of nats.JetStreamContext the publisher uses.
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ClickPublisher mirrors click events to NATS JetStream.
type ClickPublisher struct {
	js JetStreamPublisher
}

// NewClickPublisher creates a new click event publisher
func NewClickPublisher(js JetStreamPublisher) *ClickPublisher {
	return &ClickPublisher{js: js}
}

// Publish publishes a click event to the stream
func (p *ClickPublisher) Publish(ctx context.Context, event model.ClickEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.ClickStreamSubject, data, nats.Context(ctx))
	return err
}
