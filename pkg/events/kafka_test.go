package events

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writerStub struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *writerStub) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *writerStub) Close() error {
	w.closed = true
	return nil
}

func TestProducerPublish(t *testing.T) {
	stub := &writerStub{}
	p := &Producer{writer: stub, topic: "clearance.notifications"}

	require.NoError(t, p.Publish(context.Background(), []byte("student-1"), []byte(`{"action":"approved"}`)))
	require.Len(t, stub.messages, 1)
	assert.Equal(t, "student-1", string(stub.messages[0].Key))
	assert.False(t, stub.messages[0].Time.IsZero())

	stub.err = errors.New("leader not available")
	err := p.Publish(context.Background(), nil, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clearance.notifications")

	require.NoError(t, p.Close())
	assert.True(t, stub.closed)
}

func TestNilProducerIsNoop(t *testing.T) {
	var p *Producer
	require.NoError(t, p.Publish(context.Background(), nil, []byte("x")))
	require.NoError(t, p.Close())

	_, err := NewProducer(nil, "topic")
	require.Error(t, err)
}
