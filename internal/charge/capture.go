package charge

import (
	"context"
	"strings"

	"card-payments/internal/amount"
	"card-payments/internal/apperr"
	"card-payments/internal/model"
	"card-payments/internal/normalizer"
	"card-payments/internal/provider"
	"card-payments/internal/response"
	"card-payments/internal/storage"
	"card-payments/internal/transaction"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type CaptureRequest struct {
	TicketNumber string                `json:"ticketNumber"`
	MerchantID   string                `json:"merchantId"`
	Amount       *model.Amount         `json:"amount,omitempty"`
	FullResponse response.FullResponse `json:"fullResponse"`
	Metadata     map[string]any        `json:"metadata,omitempty"`
}

type ReauthRequest struct {
	TicketNumber string                `json:"ticketNumber"`
	MerchantID   string                `json:"merchantId"`
	Amount       model.Amount          `json:"amount"`
	FullResponse response.FullResponse `json:"fullResponse"`
	Metadata     map[string]any        `json:"metadata,omitempty"`
}

// Capture settles an approved pre-authorization, at most once, for up to
// its tolerated amount.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	var attempt *transaction.Attempt
	result, err := s.capture(ctx, req, &attempt)
	if err != nil {
		chargeDeclinedCounter.Inc()
		return nil, s.Normalizer.Normalize(ctx, err, normalizer.Context{
			Attempt:    attempt,
			MerchantID: req.MerchantID,
			Version:    req.FullResponse.Version,
		})
	}
	chargeApprovedCounter.Inc()
	return result, nil
}

func (s *Service) capture(ctx context.Context, req CaptureRequest, attempt **transaction.Attempt) (*Result, error) {
	merchant, _, err := s.loadMerchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	preauth, err := s.findPreauthorization(ctx, req.TicketNumber, req.MerchantID)
	if err != nil {
		return nil, err
	}

	captureAmount := amountOf(*preauth)
	if req.Amount != nil {
		captureAmount = *req.Amount
	}
	a := followUpAttempt(model.TransactionTypeCapture, *merchant, *preauth, captureAmount, req.Metadata)
	*attempt = &a

	if req.Amount != nil && !strings.EqualFold(req.Amount.Currency, preauth.CurrencyCode) {
		return nil, apperr.ErrCurrencyMismatch.WithMetadata(map[string]any{"currency": req.Amount.Currency})
	}

	if preauth.CapturedReference != "" {
		return nil, apperr.ErrAlreadyCaptured.WithMetadata(map[string]any{"ticketNumber": preauth.TicketNumber})
	}
	captured, err := s.relatedApproved(ctx, preauth.TransactionReference, model.TransactionTypeCapture)
	if err != nil {
		return nil, err
	}
	if len(captured) > 0 {
		return nil, apperr.ErrAlreadyCaptured.WithMetadata(map[string]any{"ticketNumber": preauth.TicketNumber})
	}

	if err := s.checkCaptureTolerance(ctx, *preauth, captureAmount); err != nil {
		return nil, err
	}

	service, err := s.followUpService(*merchant, *preauth)
	if err != nil {
		return nil, err
	}

	reference := a.Token.TransactionReference
	if err := s.reserveCapture(ctx, *preauth, reference); err != nil {
		return nil, err
	}
	resp, err := service.Capture(ctx, provider.CaptureInput{
		Amount:      req.Amount,
		Transaction: *preauth,
		Merchant:    *merchant,
		Processor:   processorOf(*preauth),
	})
	if err != nil {
		s.releaseCapture(context.WithoutCancel(ctx), *preauth, reference)
		return nil, err
	}

	tx := s.Builder.Approved(a, *resp)
	s.record(ctx, tx)
	return &Result{
		Body:        response.Build(req.FullResponse.Version, tx, resp, s.cfg.HidesReference(merchant.PublicID)),
		Transaction: tx,
	}, nil
}

// Reauthorize extends an approved pre-authorization by a new amount.
func (s *Service) Reauthorize(ctx context.Context, req ReauthRequest) (*Result, error) {
	var attempt *transaction.Attempt
	result, err := s.reauthorize(ctx, req, &attempt)
	if err != nil {
		chargeDeclinedCounter.Inc()
		return nil, s.Normalizer.Normalize(ctx, err, normalizer.Context{
			Attempt:    attempt,
			MerchantID: req.MerchantID,
			Version:    req.FullResponse.Version,
		})
	}
	chargeApprovedCounter.Inc()
	return result, nil
}

func (s *Service) reauthorize(ctx context.Context, req ReauthRequest, attempt **transaction.Attempt) (*Result, error) {
	merchant, _, err := s.loadMerchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	preauth, err := s.findPreauthorization(ctx, req.TicketNumber, req.MerchantID)
	if err != nil {
		return nil, err
	}

	a := followUpAttempt(model.TransactionTypeReauthorization, *merchant, *preauth, req.Amount, req.Metadata)
	*attempt = &a

	if !strings.EqualFold(req.Amount.Currency, preauth.CurrencyCode) {
		return nil, apperr.ErrCurrencyMismatch.WithMetadata(map[string]any{"currency": req.Amount.Currency})
	}

	service, err := s.followUpService(*merchant, *preauth)
	if err != nil {
		return nil, err
	}
	resp, err := service.ReAuthorization(ctx, provider.ReauthInput{
		Amount:      req.Amount,
		Transaction: *preauth,
		Processor:   processorOf(*preauth),
	})
	if err != nil {
		return nil, err
	}

	tx := s.Builder.Approved(a, *resp)
	s.record(ctx, tx)
	return &Result{
		Body:        response.Build(req.FullResponse.Version, tx, resp, s.cfg.HidesReference(merchant.PublicID)),
		Transaction: tx,
	}, nil
}

// reserveCapture marks preauth as captured by reference before dispatch. The
// condition on an absent reference makes concurrent captures fail.
func (s *Service) reserveCapture(ctx context.Context, preauth model.Transaction, reference string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.Storage.UpdateValues(ctx, storage.TableTransactions, preauth.TransactionID,
		map[string]any{"captured_reference": reference},
		&storage.Condition{Field: "captured_reference"})
	if errors.Is(err, storage.ErrConditionalCheckFailed) {
		return apperr.ErrAlreadyCaptured.WithMetadata(map[string]any{"ticketNumber": preauth.TicketNumber})
	}
	return errors.Wrap(err, "reserving capture")
}

func (s *Service) releaseCapture(ctx context.Context, preauth model.Transaction, reference string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.Storage.UpdateValues(ctx, storage.TableTransactions, preauth.TransactionID,
		map[string]any{"captured_reference": nil},
		&storage.Condition{Field: "captured_reference", Value: reference})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to release capture", "transactionId", preauth.TransactionID, "error", err)
	}
}

func (s *Service) findPreauthorization(ctx context.Context, ticketNumber, merchantID string) (*model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var transactions []model.Transaction
	err := s.Storage.Query(ctx, storage.TableTransactions, "ticket_number", ticketNumber, map[string]any{
		"merchant_id":        merchantID,
		"transaction_type":   model.TransactionTypePreauthorization,
		"transaction_status": model.TransactionStatusApproval,
	}, &transactions)
	if err != nil {
		return nil, errors.Wrap(err, "querying preauthorization")
	}
	if len(transactions) == 0 {
		return nil, apperr.ErrTransactionNotFound.WithMetadata(map[string]any{"ticketNumber": ticketNumber})
	}
	return &transactions[0], nil
}

func (s *Service) relatedApproved(ctx context.Context, preauthReference string, txType model.TransactionType) ([]model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var transactions []model.Transaction
	err := s.Storage.Query(ctx, storage.TableTransactions, "preauth_transaction_reference", preauthReference, map[string]any{
		"transaction_type":   txType,
		"transaction_status": model.TransactionStatusApproval,
	}, &transactions)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s transactions", txType)
	}
	return transactions, nil
}

// checkCaptureTolerance allows capturing up to the authorized amount plus a
// percentage. Once reauthorized, the base is the accumulated amount and the
// percentage is the reauthorization one.
func (s *Service) checkCaptureTolerance(ctx context.Context, preauth model.Transaction, capture model.Amount) error {
	reauths, err := s.relatedApproved(ctx, preauth.TransactionReference, model.TransactionTypeReauthorization)
	if err != nil {
		return err
	}

	base := decimal.NewFromFloat(preauth.ApprovedTransactionAmount)
	percent := s.cfg.CaptureTolerancePercent
	if len(reauths) > 0 {
		percent = s.cfg.ReauthCaptureTolerancePercent
		for _, r := range reauths {
			base = base.Add(decimal.NewFromFloat(r.ApprovedTransactionAmount))
		}
	}

	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(percent).Div(decimal.NewFromInt(100)))
	limit := base.Mul(factor).Round(2)
	if amount.Full(capture).GreaterThan(limit) {
		return apperr.ErrCaptureAmount.WithMetadata(map[string]any{
			"maxAmount":     limit.InexactFloat64(),
			"captureAmount": amount.FullAmount(capture),
		})
	}
	return nil
}

func (s *Service) followUpService(merchant model.Merchant, preauth model.Transaction) (provider.Service, error) {
	service, _, err := s.Router.Resolve(merchant, processorOf(preauth), model.Token{Bin: preauth.BinCard}, false)
	return service, err
}

// followUpAttempt describes a capture or reauthorization of preauth. It gets
// its own reference and keeps the card data of the pre-authorization.
func followUpAttempt(txType model.TransactionType, merchant model.Merchant, preauth model.Transaction, a model.Amount, metadata map[string]any) transaction.Attempt {
	processor := processorOf(preauth)
	return transaction.Attempt{
		Type:     txType,
		Merchant: merchant,
		Token: model.Token{
			ID:                   preauth.Token,
			Bin:                  preauth.BinCard,
			LastFourDigits:       preauth.LastFourDigits,
			MaskedCardNumber:     preauth.MaskedCardNumber,
			CardHolderName:       preauth.CardHolderName,
			TransactionReference: uuid.NewString(),
			BinInfo: &model.BinInfo{
				Bank:    preauth.IssuingBank,
				Brand:   preauth.PaymentBrand,
				Type:    preauth.CardType,
				Country: model.BinCountry{Name: preauth.CardCountry},
			},
		},
		Processor:        &processor,
		Amount:           a,
		Metadata:         metadata,
		PreauthReference: preauth.TransactionReference,
		SaleTicketNumber: preauth.TicketNumber,
	}
}

func processorOf(tx model.Transaction) model.Processor {
	return model.Processor{
		ProcessorName: tx.ProcessorName,
		PublicID:      tx.ProcessorID,
		ProcessorType: tx.ProcessorType,
		AcquirerBank:  tx.ProcessorBankName,
		Integration:   tx.Integration,
	}
}

// amountOf rebuilds the request amount of a recorded transaction.
func amountOf(tx model.Transaction) model.Amount {
	a := model.Amount{
		Currency:     tx.CurrencyCode,
		Iva:          tx.IvaValue,
		SubtotalIva:  tx.SubtotalIva,
		SubtotalIva0: tx.SubtotalIva0,
	}
	if tx.IceValue != 0 {
		ice := tx.IceValue
		a.Ice = &ice
	}
	return a
}
