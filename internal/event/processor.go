package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"card-payments/internal/config"
	"card-payments/internal/db"
	"card-payments/internal/logcontext"
	"card-payments/internal/message"
	"card-payments/internal/model"
	"card-payments/internal/payload"
	"card-payments/internal/storage"
	"github.com/pkg/errors"
)

type CallbackStore interface {
	Create(ctx context.Context, entity *db.CallbackMessageEntity) (*db.CallbackMessageEntity, error)
}

// Processor stores every recorded transaction and schedules the merchant
// webhook for it.
type Processor struct {
	storage   storage.Storage
	callbacks CallbackStore
	charge    config.Charge
	logger    *slog.Logger
}

func NewProcessor(s storage.Storage, callbacks CallbackStore, charge config.Charge, logger *slog.Logger) *Processor {
	return &Processor{storage: s, callbacks: callbacks, charge: charge, logger: logger}
}

func (p *Processor) Process(ctx context.Context, event message.TransactionEvent) error {
	tx := event.Payload
	ctx = logcontext.AppendCtx(ctx, slog.String("transactionId", tx.TransactionID))
	p.logger.InfoContext(ctx, "Processing transaction event", "eventId", event.ID, "status", tx.TransactionStatus)

	if err := p.storage.Put(ctx, storage.TableTransactions, tx.TransactionID, tx); err != nil {
		p.logger.ErrorContext(ctx, "Error storing transaction", "error", err)
		return errors.Wrap(err, "storing transaction")
	}

	var merchant model.Merchant
	found, err := p.storage.GetItem(ctx, storage.TableMerchants, tx.MerchantID, &merchant)
	if err != nil {
		return errors.Wrap(err, "getting merchant")
	}
	if p.callbacks == nil || !found || merchant.WebhookURL == "" {
		p.logger.DebugContext(ctx, "Merchant has no webhook, skipping callback")
		return nil
	}

	payloadBytes, err := json.Marshal(payload.NewWebhook(tx, p.charge.HidesReference(merchant.PublicID)))
	if err != nil {
		p.logger.ErrorContext(ctx, "Error marshalling payload", "error", err)
		return err
	}

	now := time.Now()
	entity := &db.CallbackMessageEntity{
		ID:            event.ID,
		TransactionID: tx.TransactionID,
		MerchantID:    tx.MerchantID,
		Url:           merchant.WebhookURL,
		Payload:       string(payloadBytes),
		CreatedAt:     now,
		ScheduledAt:   &now,
	}
	if _, err := p.callbacks.Create(ctx, entity); err != nil {
		p.logger.ErrorContext(ctx, "Error creating callback", "error", err)
		return err
	}

	p.logger.InfoContext(ctx, "Callback scheduled", "callbackId", entity.ID)
	return nil
}
