// Package chargeback reverses processor authorizations through the void and
// chargeback functions.
package chargeback

import (
	"context"
	"log/slog"

	"card-payments/internal/config"
	"card-payments/internal/invoker"
	"card-payments/internal/model"
)

type VoidRequest struct {
	Transaction     model.Transaction      `json:"transaction"`
	AmountToRefund  float64                `json:"amountToRefund"`
	ConvertedAmount *model.ConvertedAmount `json:"convertedAmount,omitempty"`
	FullRefund      bool                   `json:"fullRefund"`
}

type chargebackRequest struct {
	Transaction model.Transaction `json:"transaction"`
	Reason      string            `json:"reason"`
}

type chargebackResponse struct {
	Status string `json:"status"`
}

type Client struct {
	invoker   invoker.Invoker
	functions config.Functions
	logger    *slog.Logger
}

func NewClient(inv invoker.Invoker, functions config.Functions, logger *slog.Logger) *Client {
	return &Client{invoker: inv, functions: functions, logger: logger}
}

func (c *Client) Void(ctx context.Context, req VoidRequest) (*model.ProviderResponse, error) {
	resp, err := invoker.Invoke[model.ProviderResponse](ctx, c.invoker, c.functions.Void, req)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chargeback asks the processor to reverse an approved authorization.
func (c *Client) Chargeback(ctx context.Context, tx model.Transaction, reason string) error {
	resp, err := invoker.Invoke[chargebackResponse](ctx, c.invoker, c.functions.Chargeback, chargebackRequest{
		Transaction: tx,
		Reason:      reason,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Chargeback failed", "ticketNumber", tx.TicketNumber, "error", err)
		return err
	}
	c.logger.InfoContext(ctx, "Chargeback requested", "ticketNumber", tx.TicketNumber, "status", resp.Status)
	return nil
}
