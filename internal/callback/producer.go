package callback

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"card-payments/internal/config"
	"card-payments/internal/db"
	"card-payments/internal/logcontext"
	"card-payments/internal/message"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

var (
	// producer batch metrics
	producerErrorFetchingCounter = metrics.GetOrCreateCounter(`callback_producer_total{result="fetching_failed"}`)
	producerErrorKafkaCounter    = metrics.GetOrCreateCounter(`callback_producer_total{result="publish_failed"}`)
	producerErrorUpdateCounter   = metrics.GetOrCreateCounter(`callback_producer_total{result="db_update_failed"}`)
	producerSuccessCounter       = metrics.GetOrCreateCounter(`callback_producer_total{result="success"}`)

	producerProcessDurationHistogram = metrics.GetOrCreateHistogram(`callback_producer_duration_milliseconds`)

	// producer per message metrics
	producerMessagesPublishedCounter   = metrics.GetOrCreateCounter(`callback_producer_messages_total{result="published"}`)
	producerMessagesMaxAttemptsCounter = metrics.GetOrCreateCounter(`callback_producer_messages_total{result="max_attempts_reached"}`)
	producerMessagesRescheduledCounter = metrics.GetOrCreateCounter(`callback_producer_messages_total{result="rescheduled"}`)
)

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Producer moves due outbox rows to the callback topic.
type Producer struct {
	repo               *db.CallbackRepository
	writer             Writer
	topic              string
	pollingInterval    time.Duration
	fetchSize          int
	retryDelay         time.Duration
	maxPublishAttempts int
	logger             *slog.Logger
}

func NewProducer(repo *db.CallbackRepository, writer Writer, topic string, cfg config.CallbackProducer, logger *slog.Logger) *Producer {
	return &Producer{
		repo:               repo,
		writer:             writer,
		topic:              topic,
		pollingInterval:    time.Duration(cfg.PollingIntervalMs) * time.Millisecond,
		fetchSize:          cfg.FetchSize,
		retryDelay:         time.Duration(cfg.RescheduleDelayMs) * time.Millisecond,
		maxPublishAttempts: cfg.MaxPublishAttempts,
		logger:             logger,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.process(ctx)
			case <-ctx.Done():
				p.logger.InfoContext(ctx, "Context done, stopping producer")
				return
			}
		}
	}()
}

func (p *Producer) process(ctx context.Context) {
	startTime := time.Now()

	// set runId as a correlation id for all logs in scope
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error starting transaction", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}
	defer tx.Rollback(ctx)

	callbacks, err := p.repo.GetUnprocessedCallbacks(ctx, tx, p.fetchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error fetching unprocessed callbacks", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	if len(callbacks) == 0 {
		p.logger.DebugContext(ctx, "No unprocessed callbacks found")
		producerSuccessCounter.Inc()
		return
	}

	p.logger.InfoContext(ctx, "Writing messages to Kafka", "count", len(callbacks))
	err = p.writer.WriteMessages(ctx, p.toKafkaMessages(ctx, callbacks)...)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error writing messages to Kafka", "error", err)
		producerErrorKafkaCounter.Inc()
	}

	now := time.Now()
	for _, callback := range callbacks {
		messageCtx := logcontext.AppendCtx(ctx, slog.String("id", callback.ID.String()))
		callback.PublishAttempts++

		if err != nil {
			errMsg := err.Error()
			callback.Error = &errMsg

			if callback.PublishAttempts >= p.maxPublishAttempts {
				p.logger.WarnContext(messageCtx, "Max attempts reached for callback")
				callback.ScheduledAt = nil
				producerMessagesMaxAttemptsCounter.Inc()
			} else {
				scheduledAt := now.Add(time.Duration(callback.PublishAttempts) * p.retryDelay)
				callback.ScheduledAt = &scheduledAt
				producerMessagesRescheduledCounter.Inc()
			}
		} else {
			callback.ScheduledAt = nil
			callback.PublishedAt = &now
			callback.Error = nil
			producerMessagesPublishedCounter.Inc()
		}

		if err := p.repo.Update(messageCtx, tx, callback); err != nil {
			p.logger.ErrorContext(messageCtx, "Error updating callback", "error", err)
			producerErrorUpdateCounter.Inc()
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Error committing transaction", "error", err)
		producerErrorUpdateCounter.Inc()
	} else {
		producerSuccessCounter.Inc()
	}

	producerProcessDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
}

func (p *Producer) toKafkaMessages(ctx context.Context, callbacks []*db.CallbackMessageEntity) []kafka.Message {
	kafkaMessages := make([]kafka.Message, 0, len(callbacks))

	for _, entity := range callbacks {
		p.logger.DebugContext(ctx, "Preparing Kafka message for callback", "id", entity.ID)

		callbackMessage := message.Callback{
			ID:            entity.ID,
			TransactionID: entity.TransactionID,
			MerchantID:    entity.MerchantID,
			Url:           entity.Url,
			Payload:       entity.Payload,
			Attempts:      entity.DeliveryAttempts,
		}

		messageBytes, _ := json.Marshal(callbackMessage)

		kafkaMessages = append(kafkaMessages, kafka.Message{
			Topic: p.topic,
			// merchant id as key keeps each merchant's webhooks ordered
			Key:   []byte(entity.MerchantID),
			Value: messageBytes,
		})
	}
	return kafkaMessages
}
