package callback

import (
	"context"
	"log/slog"
	"time"

	"card-payments/internal/config"
	"card-payments/internal/db"
	"card-payments/internal/logcontext"
	"card-payments/internal/message"
	"github.com/VictoriaMetrics/metrics"
)

var (
	deliveredCounter    = metrics.GetOrCreateCounter(`callback_delivery_total{result="delivered"}`)
	rescheduledCounter  = metrics.GetOrCreateCounter(`callback_delivery_total{result="rescheduled"}`)
	abandonedCounter    = metrics.GetOrCreateCounter(`callback_delivery_total{result="max_attempts_reached"}`)
	deliveryFailCounter = metrics.GetOrCreateCounter(`callback_delivery_total{result="db_error"}`)
)

// Processor delivers webhook messages read from kafka, with bounded
// parallelism, rescheduling failed deliveries.
type Processor struct {
	repo        *db.CallbackRepository
	sender      *Sender
	sem         chan struct{}
	retryDelay  time.Duration
	maxAttempts int
	logger      *slog.Logger
}

func NewCallbackProcessor(repo *db.CallbackRepository, sender *Sender, cfg config.CallbackProcessor, logger *slog.Logger) *Processor {
	return &Processor{
		repo:        repo,
		sender:      sender,
		sem:         make(chan struct{}, cfg.Parallelism),
		retryDelay:  time.Duration(cfg.RescheduleDelayMs) * time.Millisecond,
		maxAttempts: cfg.MaxDeliveryAttempts,
		logger:      logger,
	}
}

func (p *Processor) Process(ctx context.Context, msg message.Callback) error {
	ctx = logcontext.AppendCtx(ctx, slog.String("callbackId", msg.ID.String()))
	p.logger.InfoContext(ctx, "Processing callback message", "transactionId", msg.TransactionID, "merchantId", msg.MerchantID)

	p.sem <- struct{}{}
	go func() {
		defer func() { <-p.sem }()
		p.deliver(ctx, msg)
	}()

	return nil
}

func (p *Processor) deliver(ctx context.Context, msg message.Callback) {
	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error starting transaction", "error", err)
		deliveryFailCounter.Inc()
		return
	}
	defer tx.Rollback(ctx)

	entity, err := p.repo.SelectForUpdateByID(ctx, tx, msg.ID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error selecting for update by ID", "error", err)
		deliveryFailCounter.Inc()
		return
	}
	if entity.DeliveredAt != nil {
		p.logger.InfoContext(ctx, "Callback already delivered")
		return
	}

	sendErr := p.sender.Send(ctx, msg.Url, msg.Payload)
	attempts := entity.DeliveryAttempts + 1

	if sendErr != nil {
		var scheduledAt *time.Time
		if attempts < p.maxAttempts {
			next := time.Now().Add(time.Duration(attempts) * p.retryDelay)
			scheduledAt = &next
			rescheduledCounter.Inc()
		} else {
			p.logger.WarnContext(ctx, "Max delivery attempts reached for callback")
			abandonedCounter.Inc()
		}
		err = p.repo.UpdateScheduledAtAndAttemptsByID(ctx, tx, msg.ID, scheduledAt, attempts, sendErr.Error())
	} else {
		err = p.repo.UpdateAttemptsAndDeliveredAtByID(ctx, tx, msg.ID, attempts, time.Now())
		deliveredCounter.Inc()
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "Error updating callback", "error", err)
		deliveryFailCounter.Inc()
		return
	}

	if err := tx.Commit(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Error committing transaction", "error", err)
		deliveryFailCounter.Inc()
	}
}
