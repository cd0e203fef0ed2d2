package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"card-payments/internal/kafka"
	"card-payments/internal/message"
	"card-payments/internal/model"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func TestPublisher_Enqueue(t *testing.T) {
	writer := &fakeWriter{}
	publisher := kafka.NewPublisher(writer, slog.Default())

	event := message.NewTransactionEvent(model.Transaction{TransactionID: "t1", TransactionReference: "ref-1"})
	require.NoError(t, publisher.Enqueue(context.Background(), "transactions", event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "transactions", msg.Topic)
	assert.Equal(t, "ref-1", string(msg.Key))

	var decoded message.TransactionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "t1", decoded.Payload.TransactionID)
}

func TestPublisher_EnqueueUnkeyedPayload(t *testing.T) {
	writer := &fakeWriter{}
	publisher := kafka.NewPublisher(writer, slog.Default())

	require.NoError(t, publisher.Enqueue(context.Background(), "other", map[string]string{"a": "b"}))
	require.Len(t, writer.messages, 1)
	assert.Nil(t, writer.messages[0].Key)
}

func TestPublisher_EnqueueWriteError(t *testing.T) {
	publisher := kafka.NewPublisher(&fakeWriter{err: errors.New("broker down")}, slog.Default())

	err := publisher.Enqueue(context.Background(), "transactions", map[string]string{})
	assert.ErrorContains(t, err, "broker down")
}
