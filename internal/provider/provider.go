// Package provider defines the capability set every acquirer implements and
// decides which acquirer variant handles a transaction.
package provider

import (
	"context"
	"time"

	"card-payments/internal/apperr"
	"card-payments/internal/model"
)

type Variant string

// ChargeInput is rebuilt for every attempt, the failover retry included.
type ChargeInput struct {
	Amount               model.Amount          `json:"amount"`
	Token                model.Token           `json:"token"`
	Merchant             model.Merchant        `json:"merchant"`
	Processor            model.Processor       `json:"processor"`
	RuleResponse         map[string]any        `json:"ruleResponse,omitempty"`
	IsFailoverRetry      bool                  `json:"isFailoverRetry"`
	RemainingTime        time.Duration         `json:"-"`
	Plcc                 *model.PlccInfo       `json:"plccInfo,omitempty"`
	TransactionType      model.TransactionType `json:"transactionType"`
	Deferred             *model.Deferred       `json:"deferred,omitempty"`
	ThreeDS              *model.ThreeDS        `json:"threeDomainSecure,omitempty"`
	TransactionReference string                `json:"transactionReference"`
	Metadata             map[string]any        `json:"metadata,omitempty"`
}

type CaptureInput struct {
	Amount      *model.Amount     `json:"amount,omitempty"`
	Transaction model.Transaction `json:"transaction"`
	Merchant    model.Merchant    `json:"merchant"`
	Processor   model.Processor   `json:"processor"`
}

type ReauthInput struct {
	Amount      model.Amount      `json:"amount"`
	Transaction model.Transaction `json:"transaction"`
	Processor   model.Processor   `json:"processor"`
}

type TokensRequest struct {
	MerchantID string          `json:"merchantId"`
	Processor  model.Processor `json:"processor"`
	Card       map[string]any  `json:"card"`
	Amount     float64         `json:"totalAmount"`
	Currency   string          `json:"currency"`
}

type AccountValidationRequest struct {
	MerchantID string          `json:"merchantId"`
	Processor  model.Processor `json:"processor"`
	Token      string          `json:"token"`
	Currency   string          `json:"currency"`
}

type Service interface {
	Tokens(ctx context.Context, req TokensRequest) (*model.TokenResponse, error)
	Charge(ctx context.Context, in ChargeInput) (*model.ProviderResponse, error)
	PreAuthorization(ctx context.Context, in ChargeInput) (*model.ProviderResponse, error)
	Capture(ctx context.Context, in CaptureInput) (*model.ProviderResponse, error)
	ReAuthorization(ctx context.Context, in ReauthInput) (*model.ProviderResponse, error)
	ValidateAccount(ctx context.Context, req AccountValidationRequest) (*model.AccountValidation, error)
}

// Registry maps every configured variant to its implementation.
type Registry struct {
	services map[Variant]Service
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[Variant]Service)}
}

func (r *Registry) Register(v Variant, s Service) *Registry {
	r.services[v] = s
	return r
}

func (r *Registry) Get(v Variant) (Service, error) {
	s, ok := r.services[v]
	if !ok {
		return nil, apperr.ErrProcessorNotFound.WithMetadata(map[string]any{"variant": string(v)})
	}
	return s, nil
}
