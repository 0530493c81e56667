package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJetStream struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.subject = subj
	f.data = data
	if f.err != nil {
		return nil, f.err
	}
	return &nats.PubAck{Stream: model.ClickStreamName, Sequence: 1}, nil
}

func TestClickPublisher_Publish(t *testing.T) {
	js := &fakeJetStream{}
	pub := NewClickPublisher(js)
	event := model.NewClickEvent("abc123", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), "203.0.113.9", "agent", "")

	require.NoError(t, pub.Publish(context.Background(), event))
	assert.Equal(t, model.ClickStreamSubject, js.subject)

	var decoded model.ClickEvent
	require.NoError(t, json.Unmarshal(js.data, &decoded))
	assert.Equal(t, "abc123", decoded.Code)
	require.NotNil(t, decoded.IP)
	assert.Equal(t, "203.0.113.9", *decoded.IP)
}

func TestClickPublisher_PublishError(t *testing.T) {
	pub := NewClickPublisher(&fakeJetStream{err: nats.ErrNoResponders})
	err := pub.Publish(context.Background(), model.NewClickEvent("x", time.Now(), "", "", ""))
	assert.True(t, errors.Is(err, nats.ErrNoResponders))
}
