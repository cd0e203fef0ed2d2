// Package bin resolves card BIN metadata through the bin-info function.
package bin

import (
	"context"
	"log/slog"
	"strings"

	"card-payments/internal/apperr"
	"card-payments/internal/invoker"
	"card-payments/internal/model"
)

type lookupRequest struct {
	Bin           string `json:"bin"`
	IsPrivateCard bool   `json:"isPrivateCard"`
	Country       string `json:"country,omitempty"`
}

type Enricher struct {
	invoker  invoker.Invoker
	function string
	logger   *slog.Logger
}

func NewEnricher(inv invoker.Invoker, function string, logger *slog.Logger) *Enricher {
	return &Enricher{invoker: inv, function: function, logger: logger}
}

// Lookup never fails the caller: lookup errors are logged and yield nil.
func (e *Enricher) Lookup(ctx context.Context, bin string, isPrivateCard bool, country string) *model.BinInfo {
	if bin == "" || strings.HasPrefix(bin, "0") {
		return nil
	}

	info, err := e.fetch(ctx, bin, isPrivateCard, country)
	if err != nil {
		e.logger.WarnContext(ctx, "Bin lookup failed", "bin", bin, "private", isPrivateCard, "error", err)
		return nil
	}
	return info
}

// Prevalidate rejects bins starting with zero and bins the lookup flags as
// invalid. Other lookup errors degrade to nil info.
func (e *Enricher) Prevalidate(ctx context.Context, bin, country string) (*model.BinInfo, error) {
	if strings.HasPrefix(bin, "0") {
		return nil, apperr.ErrBadBin.WithMetadata(map[string]any{"bin": bin})
	}
	if bin == "" {
		return nil, nil
	}

	info, err := e.fetch(ctx, bin, false, country)
	if err != nil {
		e.logger.WarnContext(ctx, "Bin prevalidation lookup failed", "bin", bin, "error", err)
		return nil, nil
	}
	if info != nil && info.Invalid {
		return nil, apperr.ErrBadBin.WithMetadata(map[string]any{"bin": bin})
	}
	return info, nil
}

func (e *Enricher) fetch(ctx context.Context, bin string, isPrivateCard bool, country string) (*model.BinInfo, error) {
	return invoker.Invoke[*model.BinInfo](ctx, e.invoker, e.function, lookupRequest{
		Bin:           bin,
		IsPrivateCard: isPrivateCard,
		Country:       country,
	})
}
