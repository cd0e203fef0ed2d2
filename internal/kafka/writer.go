package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"card-payments/internal/config"
	"card-payments/internal/queue"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

var (
	publisherSuccessCounter = metrics.GetOrCreateCounter(`kafka_publisher_total{result="success"}`)
	publisherErrorCounter   = metrics.GetOrCreateCounter(`kafka_publisher_total{result="error"}`)
)

// NewWriter builds a writer without a fixed topic, every message names its own.
func NewWriter(cfg config.Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(cfg.Broker.URL, ",")...),
		Balancer:               &kafka.ReferenceHash{},
		BatchSize:              cfg.Writer.BatchSize,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           time.Duration(cfg.Writer.BatchTimeoutMs) * time.Millisecond,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

// Keyed payloads are partitioned by their key.
type Keyed interface {
	Key() string
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher is the queue backed by kafka: the queue name is the topic.
type Publisher struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewPublisher(writer MessageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger}
}

var _ queue.Queue = (*Publisher)(nil)

func (p *Publisher) Enqueue(ctx context.Context, queueName string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding queue payload")
	}

	msg := kafka.Message{Topic: queueName, Value: value}
	if k, ok := payload.(Keyed); ok {
		msg.Key = []byte(k.Key())
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, fmt.Sprintf("Error writing message to %s: %v", queueName, err))
		publisherErrorCounter.Inc()
		return errors.Wrapf(err, "publishing to %s", queueName)
	}
	publisherSuccessCounter.Inc()
	return nil
}
