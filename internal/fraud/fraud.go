// Package fraud scores charges before they reach a processor.
package fraud

import (
	"context"
	"log/slog"
	"slices"

	"card-payments/internal/amount"
	"card-payments/internal/apperr"
	"card-payments/internal/model"
	"github.com/VictoriaMetrics/metrics"
)

const (
	decisionRed      = "red"
	decisionCategory = "block"
)

var (
	fraudSkippedCounter  = metrics.GetOrCreateCounter(`fraud_check_total{result="skipped"}`)
	fraudApprovedCounter = metrics.GetOrCreateCounter(`fraud_check_total{result="approved"}`)
	fraudRejectedCounter = metrics.GetOrCreateCounter(`fraud_check_total{result="rejected"}`)
)

type ChargeBody struct {
	TransactionReference string                `json:"transactionReference"`
	TransactionType      model.TransactionType `json:"transactionType"`
	Amount               float64               `json:"amount"`
	Currency             string                `json:"currency"`
	Bin                  string                `json:"bin"`
	LastFourDigits       string                `json:"lastFourDigits"`
	Contact              *model.ContactDetails `json:"contactDetails,omitempty"`
}

type WorkflowResponse struct {
	Score       float64  `json:"score"`
	DecisionIDs []string `json:"decisionIds"`
}

type DecisionResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Category string `json:"category"`
}

type ScoringService interface {
	GetWorkflows(ctx context.Context, merchant model.Merchant, token model.Token, body ChargeBody) (*WorkflowResponse, error)
	GetDecision(ctx context.Context, merchant model.Merchant, decisionID string) (*DecisionResponse, error)
}

type CheckRequest struct {
	TransactionType model.TransactionType
	Token           model.Token
	Merchant        model.Merchant
	Amount          model.Amount
	Contact         *model.ContactDetails
}

type Checker struct {
	scoring  ScoringService
	migrated []string
	logger   *slog.Logger
}

func NewChecker(scoring ScoringService, migratedMerchants []string, logger *slog.Logger) *Checker {
	return &Checker{scoring: scoring, migrated: migratedMerchants, logger: logger}
}

var scoredTypes = []model.TransactionType{
	model.TransactionTypeCharge,
	model.TransactionTypePreauthorization,
	model.TransactionTypeDeferred,
	model.TransactionTypeSubscriptionValidation,
}

func (c *Checker) applies(req CheckRequest) bool {
	return slices.Contains(scoredTypes, req.TransactionType) &&
		req.Token.SessionID != "" && req.Token.UserID != "" &&
		req.Merchant.FraudConfigured() &&
		!slices.Contains(c.migrated, req.Merchant.PublicID)
}

// Check returns ErrFraudRejected when the score exceeds the merchant's
// threshold or a red blocking decision was taken.
func (c *Checker) Check(ctx context.Context, req CheckRequest) error {
	if !c.applies(req) {
		fraudSkippedCounter.Inc()
		return nil
	}

	workflows, err := c.scoring.GetWorkflows(ctx, req.Merchant, req.Token, ChargeBody{
		TransactionReference: req.Token.TransactionReference,
		TransactionType:      req.TransactionType,
		Amount:               amount.FullAmount(req.Amount),
		Currency:             req.Amount.Currency,
		Bin:                  req.Token.Bin,
		LastFourDigits:       req.Token.LastFourDigits,
		Contact:              req.Contact,
	})
	if err != nil {
		return err
	}

	threshold := req.Merchant.SiftScience.BaconScore
	if threshold > 0 && workflows.Score > threshold {
		c.logger.WarnContext(ctx, "Fraud score above threshold", "score", workflows.Score, "threshold", threshold)
		fraudRejectedCounter.Inc()
		return apperr.ErrFraudRejected.WithMetadata(map[string]any{"score": workflows.Score})
	}

	for _, id := range workflows.DecisionIDs {
		decision, err := c.scoring.GetDecision(ctx, req.Merchant, id)
		if err != nil {
			return err
		}
		if decision.Type == decisionRed && decision.Category == decisionCategory {
			c.logger.WarnContext(ctx, "Fraud decision blocks transaction", "decision", decision.ID)
			fraudRejectedCounter.Inc()
			return apperr.ErrFraudRejected.WithMetadata(map[string]any{"decision": decision.Name})
		}
	}

	fraudApprovedCounter.Inc()
	return nil
}
