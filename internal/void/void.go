// Package void refunds approved sales, fully or in parts, through the void
// collaborator.
package void

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"card-payments/internal/amount"
	"card-payments/internal/apperr"
	"card-payments/internal/chargeback"
	"card-payments/internal/config"
	"card-payments/internal/logcontext"
	"card-payments/internal/model"
	"card-payments/internal/normalizer"
	"card-payments/internal/response"
	"card-payments/internal/storage"
	"card-payments/internal/transaction"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	voidFullCounter     = metrics.GetOrCreateCounter(`void_total{result="full"}`)
	voidPartialCounter  = metrics.GetOrCreateCounter(`void_total{result="partial"}`)
	voidRejectedCounter = metrics.GetOrCreateCounter(`void_total{result="rejected"}`)
)

const day = 24 * time.Hour

type Gateway interface {
	Void(ctx context.Context, req chargeback.VoidRequest) (*model.ProviderResponse, error)
}

type Recorder interface {
	Record(ctx context.Context, tx model.Transaction) error
}

type Request struct {
	TicketNumber string `json:"-"`
	MerchantID   string `json:"merchantId"`
	// Amount is the refund; nil refunds the whole pending amount.
	Amount       *model.Amount         `json:"amount,omitempty"`
	FullResponse response.FullResponse `json:"fullResponse"`
	Metadata     map[string]any        `json:"metadata,omitempty"`
}

type Body struct {
	TicketNumber         string  `json:"ticketNumber"`
	TransactionReference string  `json:"transactionReference,omitempty"`
	Status               bool    `json:"status"`
	FullyRefunded        bool    `json:"fullyRefunded"`
	PendingAmount        float64 `json:"pendingAmount"`
	Details              any     `json:"details,omitempty"`
}

type Result struct {
	Body        Body
	Transaction model.Transaction
}

type Service struct {
	storage    storage.Storage
	gateway    Gateway
	builder    *transaction.Builder
	recorder   Recorder
	normalizer *normalizer.Normalizer
	cfg        config.Void
	charge     config.Charge
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds the void orchestrator. timeout bounds every storage call.
func NewService(s storage.Storage, gateway Gateway, builder *transaction.Builder, recorder Recorder,
	n *normalizer.Normalizer, cfg config.Void, charge config.Charge, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		storage:    s,
		gateway:    gateway,
		builder:    builder,
		recorder:   recorder,
		normalizer: n,
		cfg:        cfg,
		charge:     charge,
		timeout:    timeout,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the clock used for the time limit.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	return &c
}

// refund is the outcome of the partial-refund arithmetic.
type refund struct {
	amount     decimal.Decimal
	pending    decimal.Decimal
	remaining  decimal.Decimal
	full       bool
	converted  *model.ConvertedAmount
	previously *float64
}

func (s *Service) Void(ctx context.Context, req Request) (*Result, error) {
	ctx = logcontext.AppendCtx(ctx, slog.String("ticketNumber", req.TicketNumber))

	var attempt *transaction.Attempt
	result, err := s.void(ctx, req, &attempt)
	if err != nil {
		voidRejectedCounter.Inc()
		return nil, s.normalizer.Normalize(ctx, err, normalizer.Context{
			Attempt:    attempt,
			MerchantID: req.MerchantID,
			Version:    req.FullResponse.Version,
		})
	}
	if result.Body.FullyRefunded {
		voidFullCounter.Inc()
	} else {
		voidPartialCounter.Inc()
	}
	return result, nil
}

func (s *Service) void(ctx context.Context, req Request, attempt **transaction.Attempt) (*Result, error) {
	merchant, err := s.loadMerchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}

	sale, err := s.findSale(ctx, req.TicketNumber, req.MerchantID)
	if err != nil {
		return nil, err
	}

	a := voidAttempt(*merchant, *sale, req)
	*attempt = &a

	if err := s.checkEligible(ctx, *sale); err != nil {
		return nil, err
	}
	if err := s.checkTimeLimit(*sale, merchant.Country); err != nil {
		return nil, err
	}
	r, err := s.computeRefund(*sale, merchant.Country, req.Amount)
	if err != nil {
		return nil, err
	}
	a.Amount = model.Amount{Currency: sale.CurrencyCode, SubtotalIva0: r.amount.InexactFloat64()}
	a.Converted = r.converted

	if err := s.reserve(ctx, *sale, r); err != nil {
		return nil, err
	}

	resp, err := s.gateway.Void(ctx, chargeback.VoidRequest{
		Transaction:     *sale,
		AmountToRefund:  r.amount.InexactFloat64(),
		ConvertedAmount: r.converted,
		FullRefund:      r.full,
	})
	if err != nil {
		s.release(context.WithoutCancel(ctx), *sale, r)
		return nil, err
	}

	tx := s.builder.Approved(a, *resp)
	tx.FullRefund = r.full
	if err := s.recorder.Record(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record void", "error", err)
	}

	body := Body{
		TicketNumber:         tx.TicketNumber,
		TransactionReference: tx.TransactionReference,
		Status:               true,
		FullyRefunded:        r.full,
		PendingAmount:        r.remaining.InexactFloat64(),
	}
	if s.charge.HidesReference(merchant.PublicID) {
		body.TransactionReference = ""
	}
	if v := req.FullResponse.Version; v == response.VersionV1 || v == response.VersionV2 {
		body.Details = response.Build(v, tx, resp, s.charge.HidesReference(merchant.PublicID))
	}
	s.logger.InfoContext(ctx, "Void completed", "full", r.full, "pendingAmount", body.PendingAmount)
	return &Result{Body: body, Transaction: tx}, nil
}

func (s *Service) loadMerchant(ctx context.Context, merchantID string) (*model.Merchant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var merchant model.Merchant
	found, err := s.storage.GetItem(ctx, storage.TableMerchants, merchantID, &merchant)
	if err != nil {
		return nil, errors.Wrap(err, "getting merchant")
	}
	if !found {
		return nil, apperr.ErrMerchantNotFound
	}
	return &merchant, nil
}

func (s *Service) findSale(ctx context.Context, ticketNumber, merchantID string) (*model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var transactions []model.Transaction
	err := s.storage.Query(ctx, storage.TableTransactions, "ticket_number", ticketNumber, map[string]any{
		"merchant_id":        merchantID,
		"transaction_status": model.TransactionStatusApproval,
	}, &transactions)
	if err != nil {
		return nil, errors.Wrap(err, "querying sale")
	}
	for _, tx := range transactions {
		if tx.TransactionType != model.TransactionTypeVoid {
			return &tx, nil
		}
	}
	if len(transactions) > 0 {
		return nil, apperr.ErrVoidNotAllowed.WithMetadata(map[string]any{"ticketNumber": ticketNumber})
	}
	return nil, apperr.ErrTransactionNotFound.WithMetadata(map[string]any{"ticketNumber": ticketNumber})
}

// checkEligible rejects pre-authorizations that were never captured, except
// gateway mall integrations and processors that void pre-authorizations.
func (s *Service) checkEligible(ctx context.Context, sale model.Transaction) error {
	if sale.TransactionType == model.TransactionTypeVoid {
		return apperr.ErrVoidNotAllowed
	}
	if sale.TransactionType != model.TransactionTypePreauthorization {
		return nil
	}
	if sale.ProcessorType == model.ProcessorTypeGateway && strings.EqualFold(sale.Integration, model.IntegrationMall) {
		return nil
	}
	if slices.Contains(s.cfg.PreauthVoidProcessors, sale.ProcessorName) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var captures []model.Transaction
	err := s.storage.Query(ctx, storage.TableTransactions, "preauth_transaction_reference", sale.TransactionReference,
		map[string]any{
			"transaction_type":   model.TransactionTypeCapture,
			"transaction_status": model.TransactionStatusApproval,
		}, &captures)
	if err != nil {
		return errors.Wrap(err, "querying captures")
	}
	if len(captures) == 0 {
		return apperr.ErrVoidNotAllowed.WithMetadata(map[string]any{"reason": "preauthorization not captured"})
	}
	return nil
}

func (s *Service) checkTimeLimit(sale model.Transaction, country string) error {
	limitDays := s.cfg.DefaultLimitDays
	if slices.Contains(s.cfg.LimitProcessors, sale.ProcessorName) {
		if limit, ok := s.cfg.Limit(country); ok {
			limitDays = limit.InternationalDays
			if sale.CardCountry == "" || strings.EqualFold(sale.CardCountry, country) {
				limitDays = limit.DomesticDays
			}
		}
	}
	if limitDays <= 0 {
		return nil
	}

	elapsed := s.now().Sub(time.UnixMilli(sale.Created))
	if elapsed > time.Duration(limitDays)*day {
		return apperr.ErrVoidTimeLimit.WithMetadata(map[string]any{"limitDays": limitDays})
	}
	return nil
}

func (s *Service) computeRefund(sale model.Transaction, country string, requested *model.Amount) (refund, error) {
	pending := decimal.NewFromFloat(sale.OutstandingAmount())
	r := refund{pending: pending, amount: pending, previously: sale.PendingAmount}

	if requested != nil {
		if requested.Currency != "" && !strings.EqualFold(requested.Currency, sale.CurrencyCode) {
			return r, apperr.ErrCurrencyMismatch.WithMetadata(map[string]any{"currency": requested.Currency})
		}
		r.amount = amount.Full(*requested)
	}

	if !r.amount.IsPositive() {
		return r, apperr.ErrInvalidRefundAmount
	}
	if r.amount.GreaterThan(pending) {
		return r, apperr.ErrRefundExceeded.WithMetadata(map[string]any{"pendingAmount": pending.InexactFloat64()})
	}

	r.full = r.amount.Equal(pending)
	r.remaining = pending.Sub(r.amount)
	if !r.full {
		if slices.Contains(s.cfg.PartialDenyProcessors, sale.ProcessorName) || !s.cfg.PartialAllowed(country, sale.ProcessorName) {
			return r, apperr.ErrPartialVoidNotAllowed.WithMetadata(map[string]any{"processorName": sale.ProcessorName})
		}
	}

	r.converted = scaleConverted(sale, r.amount)
	return r, nil
}

// scaleConverted refunds the unit-of-account amount in the same proportion
// as the settlement amount.
func scaleConverted(sale model.Transaction, refunded decimal.Decimal) *model.ConvertedAmount {
	if sale.ConvertedAmount == nil || sale.ApprovedTransactionAmount == 0 {
		return nil
	}
	ratio := refunded.Div(decimal.NewFromFloat(sale.ApprovedTransactionAmount))
	scaled := decimal.NewFromFloat(sale.ConvertedAmount.TotalAmount).Mul(ratio).Round(2)
	return &model.ConvertedAmount{Currency: sale.ConvertedAmount.Currency, TotalAmount: scaled.InexactFloat64()}
}

// reserve moves the sale's pending amount before dispatch. The condition on
// the previous value makes concurrent voids of the same sale fail.
func (s *Service) reserve(ctx context.Context, sale model.Transaction, r refund) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var previous any
	if r.previously != nil {
		previous = *r.previously
	}
	err := s.storage.UpdateValues(ctx, storage.TableTransactions, sale.TransactionID,
		map[string]any{"pending_amount": r.remaining.InexactFloat64()},
		&storage.Condition{Field: "pending_amount", Value: previous})
	if errors.Is(err, storage.ErrConditionalCheckFailed) {
		return apperr.ErrVoidNotAllowed.WithMetadata(map[string]any{"reason": "concurrent void"})
	}
	return errors.Wrap(err, "updating pending amount")
}

func (s *Service) release(ctx context.Context, sale model.Transaction, r refund) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var restored any
	if r.previously != nil {
		restored = *r.previously
	}
	err := s.storage.UpdateValues(ctx, storage.TableTransactions, sale.TransactionID,
		map[string]any{"pending_amount": restored},
		&storage.Condition{Field: "pending_amount", Value: r.remaining.InexactFloat64()})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to restore pending amount", "transactionId", sale.TransactionID, "error", err)
	}
}

func voidAttempt(merchant model.Merchant, sale model.Transaction, req Request) transaction.Attempt {
	return transaction.Attempt{
		Type:     model.TransactionTypeVoid,
		Merchant: merchant,
		Token: model.Token{
			ID:                   sale.Token,
			Bin:                  sale.BinCard,
			LastFourDigits:       sale.LastFourDigits,
			MaskedCardNumber:     sale.MaskedCardNumber,
			CardHolderName:       sale.CardHolderName,
			TransactionReference: uuid.NewString(),
			BinInfo: &model.BinInfo{
				Bank:    sale.IssuingBank,
				Brand:   sale.PaymentBrand,
				Type:    sale.CardType,
				Country: model.BinCountry{Name: sale.CardCountry},
			},
		},
		Processor: &model.Processor{
			ProcessorName: sale.ProcessorName,
			PublicID:      sale.ProcessorID,
			ProcessorType: sale.ProcessorType,
			AcquirerBank:  sale.ProcessorBankName,
			Integration:   sale.Integration,
		},
		Amount:           model.Amount{Currency: sale.CurrencyCode, SubtotalIva0: sale.OutstandingAmount()},
		Metadata:         req.Metadata,
		SaleTicketNumber: sale.TicketNumber,
	}
}
