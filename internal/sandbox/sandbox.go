// Package sandbox is the in-process acquirer used for sandbox merchants. It
// approves everything except a few magic card endings.
package sandbox

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"card-payments/internal/amount"
	"card-payments/internal/apperr"
	"card-payments/internal/model"
	"card-payments/internal/provider"
	"github.com/google/uuid"
)

const (
	DeclinedLastFour    = "0005"
	UnreachableLastFour = "0228"
	processorName       = "Sandbox Processor"
)

type Provider struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Provider {
	return &Provider{logger: logger}
}

var _ provider.Service = (*Provider)(nil)

func (p *Provider) Tokens(_ context.Context, _ provider.TokensRequest) (*model.TokenResponse, error) {
	return &model.TokenResponse{Token: uuid.NewString()}, nil
}

func (p *Provider) Charge(ctx context.Context, in provider.ChargeInput) (*model.ProviderResponse, error) {
	return p.authorize(ctx, in)
}

func (p *Provider) PreAuthorization(ctx context.Context, in provider.ChargeInput) (*model.ProviderResponse, error) {
	return p.authorize(ctx, in)
}

func (p *Provider) Capture(_ context.Context, in provider.CaptureInput) (*model.ProviderResponse, error) {
	approved := in.Transaction.ApprovedTransactionAmount
	if in.Amount != nil {
		approved = amount.FullAmount(*in.Amount)
	}
	return approval(approved), nil
}

func (p *Provider) ReAuthorization(_ context.Context, in provider.ReauthInput) (*model.ProviderResponse, error) {
	return approval(amount.FullAmount(in.Amount)), nil
}

func (p *Provider) ValidateAccount(_ context.Context, _ provider.AccountValidationRequest) (*model.AccountValidation, error) {
	return &model.AccountValidation{Valid: true, ResponseCode: "000", ResponseText: "Approved"}, nil
}

func (p *Provider) authorize(ctx context.Context, in provider.ChargeInput) (*model.ProviderResponse, error) {
	total := amount.FullAmount(in.Amount)
	p.logger.DebugContext(ctx, "Sandbox authorization", "amount", total, "failover", in.IsFailoverRetry)

	switch in.Token.LastFourDigits {
	case DeclinedLastFour:
		return nil, apperr.NewProviderError("005", "Declined by sandbox.", map[string]any{
			"ticketNumber":  ticketNumber(),
			"processorName": processorName,
		})
	case UnreachableLastFour:
		if !in.IsFailoverRetry {
			return nil, apperr.ProcessorUnreachable(map[string]any{"processorName": processorName})
		}
	}
	return approval(total), nil
}

func approval(total float64) *model.ProviderResponse {
	return &model.ProviderResponse{
		TicketNumber:              ticketNumber(),
		TransactionID:             uuid.NewString(),
		ApprovalCode:              fmt.Sprintf("%06d", randomInt(1_000_000)),
		ResponseCode:              "000",
		ResponseText:              "Approved transaction",
		ApprovedTransactionAmount: total,
		ProcessorName:             processorName,
	}
}

func ticketNumber() string {
	return fmt.Sprintf("%018d", randomInt(1e18))
}

func randomInt(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0
	}
	return n.Int64()
}
