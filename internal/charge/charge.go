// Package charge orchestrates charges, pre-authorizations, captures and
// reauthorizations from token validation to the recorded transaction.
package charge

import (
	"context"
	"log/slog"
	"time"

	"card-payments/internal/amount"
	"card-payments/internal/config"
	"card-payments/internal/deferred"
	"card-payments/internal/fraud"
	"card-payments/internal/model"
	"card-payments/internal/normalizer"
	"card-payments/internal/provider"
	"card-payments/internal/response"
	"card-payments/internal/storage"
	"card-payments/internal/token"
	"card-payments/internal/transaction"
	"card-payments/internal/trxrule"
	"github.com/VictoriaMetrics/metrics"
)

var (
	chargeApprovedCounter = metrics.GetOrCreateCounter(`charge_total{result="approved"}`)
	chargeDeclinedCounter = metrics.GetOrCreateCounter(`charge_total{result="declined"}`)
	chargeFailoverCounter = metrics.GetOrCreateCounter(`charge_total{result="failover"}`)
	chargeReversedCounter = metrics.GetOrCreateCounter(`charge_total{result="reversed"}`)

	chargeDurationHistogram = metrics.GetOrCreateHistogram(`charge_duration_milliseconds`)
)

type BinValidator interface {
	Prevalidate(ctx context.Context, bin, country string) (*model.BinInfo, error)
}

type Converter interface {
	Convert(ctx context.Context, a model.Amount) (amount.ConversionResult, model.Amount, error)
}

type FraudChecker interface {
	Check(ctx context.Context, req fraud.CheckRequest) error
}

type RuleInvoker interface {
	Invoke(ctx context.Context, req trxrule.Request) (*trxrule.Result, error)
}

type Recorder interface {
	Record(ctx context.Context, tx model.Transaction) error
}

// Reverser undoes an approval the caller will never see.
type Reverser interface {
	Chargeback(ctx context.Context, tx model.Transaction, reason string) error
}

type Request struct {
	Token               string                `json:"token"`
	MerchantID          string                `json:"merchantId"`
	Amount              model.Amount          `json:"amount"`
	Deferred            *model.Deferred       `json:"deferred,omitempty"`
	FullResponse        response.FullResponse `json:"fullResponse"`
	Metadata            map[string]any        `json:"metadata,omitempty"`
	ContactDetails      *model.ContactDetails `json:"contactDetails,omitempty"`
	OrderDetails        map[string]any        `json:"orderDetails,omitempty"`
	ProductDetails      map[string]any        `json:"productDetails,omitempty"`
	ThreeDS             *model.ThreeDS        `json:"threeDomainSecure,omitempty"`
	IP                  string                `json:"ip,omitempty"`
	Origin              string                `json:"origin,omitempty"`
	SubscriptionTrigger string                `json:"subscriptionTrigger,omitempty"`
	SubscriptionID      string                `json:"subscriptionId,omitempty"`
	// RawResponse answers with the processor response as is.
	RawResponse bool `json:"-"`
}

func (r Request) version() response.Version {
	if r.RawResponse {
		return response.VersionRaw
	}
	return r.FullResponse.Version
}

type Result struct {
	Body        any
	Transaction model.Transaction
	// States lists the states the request went through, in order.
	States []State
}

type Dependencies struct {
	Storage    storage.Storage
	Tokens     *token.Resolver
	Bins       BinValidator
	Converter  Converter
	Fraud      FraudChecker
	Rules      RuleInvoker
	Deferred   *deferred.Engine
	Router     *provider.Router
	Builder    *transaction.Builder
	Recorder   Recorder
	Normalizer *normalizer.Normalizer
	Reverser   Reverser
}

type Service struct {
	Dependencies
	cfg     config.Charge
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(deps Dependencies, cfg config.Charge, externalTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		Dependencies: deps,
		cfg:          cfg,
		timeout:      externalTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) Charge(ctx context.Context, req Request) (*Result, error) {
	txType := model.TransactionTypeCharge
	if req.Deferred != nil {
		txType = model.TransactionTypeDeferred
	}
	return s.authorize(ctx, req, txType)
}

func (s *Service) PreAuthorize(ctx context.Context, req Request) (*Result, error) {
	return s.authorize(ctx, req, model.TransactionTypePreauthorization)
}

func (s *Service) authorize(ctx context.Context, req Request, txType model.TransactionType) (*Result, error) {
	startTime := time.Now()
	defer func() {
		chargeDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	f := &flow{req: req, txType: txType, state: StateStart}
	result, err := s.run(ctx, f)
	if err != nil {
		chargeDeclinedCounter.Inc()
		return nil, err
	}
	chargeApprovedCounter.Inc()
	return result, nil
}
