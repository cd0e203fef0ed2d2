package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"card-payments/internal/callback"
	"card-payments/internal/config"
	"card-payments/internal/event"
	"card-payments/internal/message"
	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"
)

type Metrics struct {
	ReadErrorCounter      *metrics.Counter
	UnmarshalErrorCounter *metrics.Counter
	ProcessErrorCounter   *metrics.Counter
	SuccessCounter        *metrics.Counter
}

var (
	transactionEventMetrics = Metrics{
		ReadErrorCounter:      metrics.GetOrCreateCounter(`kafka_reader_total{result="read_error",type="transaction_event"}`),
		UnmarshalErrorCounter: metrics.GetOrCreateCounter(`kafka_reader_total{result="unmarshal_error",type="transaction_event"}`),
		ProcessErrorCounter:   metrics.GetOrCreateCounter(`kafka_reader_total{result="process_error",type="transaction_event"}`),
		SuccessCounter:        metrics.GetOrCreateCounter(`kafka_reader_total{result="success",type="transaction_event"}`),
	}

	callbackMessageMetrics = Metrics{
		ReadErrorCounter:      metrics.GetOrCreateCounter(`kafka_reader_total{result="read_error",type="callback_message"}`),
		UnmarshalErrorCounter: metrics.GetOrCreateCounter(`kafka_reader_total{result="unmarshal_error",type="callback_message"}`),
		ProcessErrorCounter:   metrics.GetOrCreateCounter(`kafka_reader_total{result="process_error",type="callback_message"}`),
		SuccessCounter:        metrics.GetOrCreateCounter(`kafka_reader_total{result="success",type="callback_message"}`),
	}
)

func NewReader(cfg config.Kafka, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(cfg.Broker.URL, ","),
		GroupID: cfg.Reader.GroupID,
		Topic:   topic,
	})
}

func ReadTransactionEvents(ctx context.Context, reader *kafka.Reader, processor *event.Processor, logger *slog.Logger) {
	readMessages(ctx, reader, logger, func(ctx context.Context, value []byte) error {
		var e message.TransactionEvent
		if err := json.Unmarshal(value, &e); err != nil {
			logger.ErrorContext(ctx, fmt.Sprintf("Error unmarshalling message: %v", err))
			transactionEventMetrics.UnmarshalErrorCounter.Inc()
			return err
		}
		return processor.Process(ctx, e)
	}, transactionEventMetrics)
}

func ReadCallbackMessages(ctx context.Context, reader *kafka.Reader, processor *callback.Processor, logger *slog.Logger) {
	readMessages(ctx, reader, logger, func(ctx context.Context, value []byte) error {
		var c message.Callback
		if err := json.Unmarshal(value, &c); err != nil {
			logger.ErrorContext(ctx, fmt.Sprintf("Error unmarshalling message: %v", err))
			callbackMessageMetrics.UnmarshalErrorCounter.Inc()
			return err
		}
		return processor.Process(ctx, c)
	}, callbackMessageMetrics)
}

func readMessages(ctx context.Context, reader *kafka.Reader, logger *slog.Logger, process func(context.Context, []byte) error, kafkaMetrics Metrics) {
	go func() {
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.InfoContext(ctx, "Context done, stopping reader", "topic", reader.Config().Topic)
					return
				}
				logger.ErrorContext(ctx, fmt.Sprintf("Error reading message: %v", err))
				kafkaMetrics.ReadErrorCounter.Inc()
				continue
			}
			logger.DebugContext(ctx, "Received message", "topic", m.Topic, "offset", m.Offset)

			err = process(ctx, m.Value)
			if err != nil {
				logger.ErrorContext(ctx, fmt.Sprintf("Error processing message: %v", err))
				kafkaMetrics.ProcessErrorCounter.Inc()
				continue
			}
			kafkaMetrics.SuccessCounter.Inc()
		}
	}()
}
