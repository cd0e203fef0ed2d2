// Package normalizer turns any orchestration failure into the canonical
// error returned to callers and records the declined attempt.
package normalizer

import (
	"context"
	"log/slog"

	"card-payments/internal/apperr"
	"card-payments/internal/config"
	"card-payments/internal/model"
	"card-payments/internal/response"
	"card-payments/internal/transaction"
)

var sensitiveKeys = []string{"security3Ds", "vaultToken", "secureId"}

type Recorder interface {
	Record(ctx context.Context, tx model.Transaction) error
}

// Context is what the failing flow knew when it failed.
type Context struct {
	// Attempt is nil, or has no token or merchant, when nothing must be recorded.
	Attempt    *transaction.Attempt
	MerchantID string
	Version    response.Version
	Origin     string
}

type Normalizer struct {
	builder  *transaction.Builder
	recorder Recorder
	charge   config.Charge
	logger   *slog.Logger
}

func New(builder *transaction.Builder, recorder Recorder, charge config.Charge, logger *slog.Logger) *Normalizer {
	return &Normalizer{builder: builder, recorder: recorder, charge: charge, logger: logger}
}

func (n *Normalizer) Normalize(ctx context.Context, err error, c Context) *apperr.Error {
	if err == nil {
		return nil
	}

	e := apperr.From(err)
	extra := map[string]any{}

	var declined *model.Transaction
	if recordable(c.Attempt) {
		tx := n.builder.Declined(*c.Attempt, e)
		declined = &tx
		if c.Version == response.VersionV2 && c.Origin != model.OriginSubscription {
			extra = response.Metadata(tx)
		}
	}

	out := e.WithMetadata(extra)
	for _, key := range sensitiveKeys {
		delete(out.Metadata, key)
	}

	merchantID := c.MerchantID
	if merchantID == "" && c.Attempt != nil {
		merchantID = c.Attempt.Merchant.PublicID
	}
	if n.charge.HidesReference(merchantID) {
		delete(out.Metadata, "transactionReference")
	}

	n.logger.WarnContext(ctx, "Request failed", "code", out.Code, "family", out.Family.String(), "error", err)

	if declined != nil {
		if err := n.recorder.Record(ctx, *declined); err != nil {
			n.logger.ErrorContext(ctx, "Failed to record declined attempt",
				"transactionReference", declined.TransactionReference, "error", err)
		}
	}
	return out
}

func recordable(a *transaction.Attempt) bool {
	return a != nil && a.Token.ID != "" && a.Merchant.PublicID != ""
}
