package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestKafkaPublisherKeysByChat(t *testing.T) {
	w := &captureWriter{}
	p := &KafkaPublisher{writer: w}
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.Publish(context.Background(), Event{Type: MessageCreated, ChatID: "c1", MessageID: "m1", UserID: "u1", OccurredAt: at}))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "c1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, MessageCreated, string(msg.Headers[0].Value))

	var e Event
	require.NoError(t, json.Unmarshal(msg.Value, &e))
	assert.Equal(t, "m1", e.MessageID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	p := New(nil, "chat.messages")
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), Event{Type: ChatCreated}))
}
