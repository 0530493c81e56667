package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/sifan077/tinylink/internal/app/repository"
	"go.uber.org/zap"
)

const (
	fetchBatch   = 10
	fetchMaxWait = 5 * time.Second
	fetchBackoff = time.Second
)

// ClickConsumer drains mirrored click events from JetStream into the archive.
type ClickConsumer struct {
	js      nats.JetStreamContext
	logger  *zap.Logger
	repo    repository.ClickArchiveRepository
	backoff time.Duration
}

// NewClickConsumer creates a new click event consumer
func NewClickConsumer(js nats.JetStreamContext, logger *zap.Logger, repo repository.ClickArchiveRepository) *ClickConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickConsumer{js: js, logger: logger, repo: repo, backoff: fetchBackoff}
}

// EnsureStream creates the click stream when it does not exist yet.
func EnsureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(model.ClickStreamName); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     model.ClickStreamName,
		Subjects: []string{model.ClickStreamSubject},
		MaxBytes: model.ClickStreamMaxBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Start subscribes and consumes in the background until ctx is cancelled.
func (c *ClickConsumer) Start(ctx context.Context) error {
	if err := EnsureStream(c.js); err != nil {
		return err
	}

	// Create consumer if not exists
	if _, err := c.js.ConsumerInfo(model.ClickStreamName, model.ClickConsumerName); err != nil {
		_, err = c.js.AddConsumer(model.ClickStreamName, &nats.ConsumerConfig{
			Durable:   model.ClickConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ClickStreamSubject, model.ClickConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(ctx, sub)
	return nil
}

func (c *ClickConsumer) consume(ctx context.Context, sub *nats.Subscription) {
	defer func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			c.logger.Warn("failed to unsubscribe click consumer", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("click consumer stopped")
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchMaxWait)
		msgs, err := sub.Fetch(fetchBatch, nats.Context(fetchCtx))
		cancel()
		if err != nil && c.stopAfterFetchError(ctx, err) {
			c.logger.Info("click consumer stopped", zap.Error(err))
			return
		}

		for _, msg := range msgs {
			if err := c.handle(ctx, msg.Data); err != nil {
				c.logger.Error("failed to archive click event", zap.Error(err))
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
		}
	}
}

// stopAfterFetchError decides how the consume loop continues after a failed
// Fetch. Empty polls continue at once, other errors wait c.backoff first, and
// a closed connection, an invalid subscription or a cancelled ctx stop it.
func (c *ClickConsumer) stopAfterFetchError(ctx context.Context, err error) bool {
	switch {
	case ctx.Err() != nil:
		return true
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
		return true
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return false
	}

	c.logger.Error("failed to fetch messages", zap.Error(err))
	select {
	case <-ctx.Done():
		return true
	case <-time.After(c.backoff):
		return false
	}
}

func (c *ClickConsumer) handle(ctx context.Context, data []byte) error {
	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("decode click event: %w", err)
	}

	if err := c.repo.Create(ctx, event); err != nil {
		return fmt.Errorf("store click event %q: %w", event.Code, err)
	}

	c.logger.Debug("click event archived",
		zap.String("code", event.Code),
		zap.Time("time", event.Time),
	)
	return nil
}
