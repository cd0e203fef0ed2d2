package charge

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"card-payments/internal/amount"
	"card-payments/internal/apperr"
	"card-payments/internal/deferred"
	"card-payments/internal/fraud"
	"card-payments/internal/logcontext"
	"card-payments/internal/model"
	"card-payments/internal/normalizer"
	"card-payments/internal/provider"
	"card-payments/internal/response"
	"card-payments/internal/storage"
	"card-payments/internal/transaction"
	"card-payments/internal/trxrule"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type State int

const (
	StateStart State = iota
	StateTokenValidated
	StateFraudChecked
	StateRuleInvoked
	StateDispatched
	StateProviderSuccess
	StateProviderFailed
	StateFailoverDispatched
	StateResponseBuilt
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateTokenValidated:
		return "TokenValidated"
	case StateFraudChecked:
		return "FraudChecked"
	case StateRuleInvoked:
		return "RuleInvoked"
	case StateDispatched:
		return "Dispatched"
	case StateProviderSuccess:
		return "ProviderSuccess"
	case StateProviderFailed:
		return "ProviderFailed"
	case StateFailoverDispatched:
		return "FailoverDispatched"
	case StateResponseBuilt:
		return "ResponseBuilt"
	case StatePersisted:
		return "Persisted"
	default:
		return "Unknown"
	}
}

const reversalReason = "remaining time exhausted after failover"

// flow is the mutable state of one authorization request.
type flow struct {
	req    Request
	txType model.TransactionType
	state  State
	states []State

	merchant  *model.Merchant
	hierarchy *model.Hierarchy
	token     *model.Token

	rules     *trxrule.Result
	processor model.Processor
	amount    model.Amount
	converted *model.ConvertedAmount
	retry     bool

	providerResp *model.ProviderResponse
	providerErr  error
	// failedAttempt is the 228 error of the first attempt once it was recorded.
	failedAttempt *apperr.Error
	recorded      bool

	tx   model.Transaction
	body any
}

func (f *flow) attempt() *transaction.Attempt {
	if f.token == nil || f.merchant == nil {
		return nil
	}
	a := &transaction.Attempt{
		Type:            f.txType,
		Token:           *f.token,
		Merchant:        *f.merchant,
		Amount:          f.req.Amount,
		Converted:       f.converted,
		Deferred:        f.req.Deferred,
		IsFailoverRetry: f.retry,
		Contact:         f.req.ContactDetails,
		SubscriptionID:  f.req.SubscriptionID,
		Metadata:        f.req.Metadata,
	}
	if f.converted != nil {
		a.Amount = f.amount
	}
	if f.rules != nil {
		processor := f.processor
		a.Processor = &processor
		a.Plcc = f.rules.Plcc
		a.RuleResponse = f.rules.Raw
	}
	return a
}

func (s *Service) run(ctx context.Context, f *flow) (*Result, error) {
	f.states = append(f.states, f.state)
	for f.state != StatePersisted {
		next, err := s.transition(ctx, f)
		if err != nil {
			return nil, s.fail(ctx, f, err)
		}
		if next == StateTokenValidated {
			ctx = logcontext.AppendCtx(ctx, slog.String("transactionReference", f.token.TransactionReference))
		}
		s.logger.DebugContext(ctx, "Charge state changed", "from", f.state.String(), "to", next.String())
		f.state = next
		f.states = append(f.states, next)
	}
	return &Result{Body: f.body, Transaction: f.tx, States: f.states}, nil
}

func (s *Service) transition(ctx context.Context, f *flow) (State, error) {
	switch f.state {
	case StateStart:
		return StateTokenValidated, s.validateToken(ctx, f)
	case StateTokenValidated:
		return StateFraudChecked, s.checkFraud(ctx, f)
	case StateFraudChecked:
		return StateRuleInvoked, s.invokeRule(ctx, f)
	case StateRuleInvoked:
		return StateDispatched, s.dispatch(ctx, f)
	case StateDispatched:
		if f.providerErr != nil {
			return StateProviderFailed, nil
		}
		return StateProviderSuccess, nil
	case StateProviderFailed:
		return s.handleProviderFailure(ctx, f)
	case StateFailoverDispatched:
		return s.afterFailover(ctx, f)
	case StateProviderSuccess:
		return StateResponseBuilt, s.buildResponse(f)
	case StateResponseBuilt:
		s.persist(ctx, f)
		return StatePersisted, nil
	default:
		return f.state, errors.Errorf("unexpected charge state %s", f.state)
	}
}

// fail normalizes err and records the failed attempt unless it already was.
func (s *Service) fail(ctx context.Context, f *flow, err error) error {
	c := normalizer.Context{
		MerchantID: f.req.MerchantID,
		Version:    f.req.version(),
		Origin:     f.req.Origin,
	}
	if !f.recorded {
		c.Attempt = f.attempt()
	}
	return s.Normalizer.Normalize(ctx, err, c)
}

func (s *Service) validateToken(ctx context.Context, f *flow) error {
	merchant, hierarchy, err := s.loadMerchant(ctx, f.req.MerchantID)
	if err != nil {
		return err
	}
	f.merchant, f.hierarchy = merchant, hierarchy

	token, err := s.Tokens.Resolve(ctx, f.req.Token, *merchant)
	if err != nil {
		return err
	}
	f.token = token

	if err := s.Tokens.CheckExpired(token, s.now()); err != nil {
		return err
	}
	if err := s.Tokens.CheckAlreadyUsed(ctx, token); err != nil {
		return err
	}
	if token.Currency != "" && !strings.EqualFold(token.Currency, f.req.Amount.Currency) {
		return apperr.ErrCurrencyMismatch.WithMetadata(map[string]any{"currency": f.req.Amount.Currency})
	}
	if err := s.checkThreshold(token, f.req.Amount); err != nil {
		return err
	}
	if err := s.checkThreeDS(token, f.req.ThreeDS); err != nil {
		return err
	}

	if token.BinInfo == nil && token.Bin != "" {
		info, err := s.Bins.Prevalidate(ctx, token.Bin, merchant.Country)
		if err != nil {
			return err
		}
		token.BinInfo = info
	}
	return nil
}

func (s *Service) loadMerchant(ctx context.Context, merchantID string) (*model.Merchant, *model.Hierarchy, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		merchant        model.Merchant
		hierarchy       model.Hierarchy
		found, hasLevel bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		found, err = s.Storage.GetItem(gctx, storage.TableMerchants, merchantID, &merchant)
		return errors.Wrap(err, "getting merchant")
	})
	g.Go(func() error {
		var err error
		hasLevel, err = s.Storage.GetItem(gctx, storage.TableHierarchy, merchantID, &hierarchy)
		return errors.Wrap(err, "getting hierarchy")
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, apperr.ErrMerchantNotFound
	}
	if !hasLevel {
		return &merchant, nil, nil
	}
	return &merchant, &hierarchy, nil
}

// checkThreshold compares the request total with the amount captured at
// tokenization. A zero threshold demands an exact match; tokens without an
// amount are exempt.
func (s *Service) checkThreshold(token *model.Token, a model.Amount) error {
	if token.Amount <= 0 {
		return nil
	}
	diff := amount.Full(a).Sub(decimal.NewFromFloat(token.Amount)).Abs()
	if diff.GreaterThan(decimal.NewFromFloat(s.cfg.AmountThreshold)) {
		return apperr.ErrThresholdAmount.WithMetadata(map[string]any{
			"tokenAmount":   token.Amount,
			"requestAmount": amount.FullAmount(a),
		})
	}
	return nil
}

// checkThreeDS validates externally authenticated cards by brand ECI.
func (s *Service) checkThreeDS(token *model.Token, threeDS *model.ThreeDS) error {
	if threeDS == nil || threeDS.AcceptRisk || token.BinInfo == nil {
		return nil
	}

	var allowed []string
	switch strings.ToLower(token.BinInfo.Brand) {
	case "visa":
		allowed = s.cfg.ThreeDS.VisaECI
	case "mastercard":
		allowed = s.cfg.ThreeDS.MastercardECI
	default:
		return nil
	}
	if !slices.Contains(allowed, threeDS.ECI) {
		return apperr.ErrThreeDSInvalid.WithMetadata(map[string]any{"eci": threeDS.ECI})
	}
	return nil
}

func (s *Service) checkFraud(ctx context.Context, f *flow) error {
	return s.Fraud.Check(ctx, fraud.CheckRequest{
		TransactionType: f.txType,
		Token:           *f.token,
		Merchant:        *f.merchant,
		Amount:          f.req.Amount,
		Contact:         f.req.ContactDetails,
	})
}

func (s *Service) invokeRule(ctx context.Context, f *flow) error {
	rules, err := s.Rules.Invoke(ctx, trxrule.Request{
		Token:               *f.token,
		Merchant:            *f.merchant,
		Hierarchy:           f.hierarchy,
		Amount:              f.req.Amount,
		TransactionType:     f.txType,
		Deferred:            f.req.Deferred,
		Contact:             f.req.ContactDetails,
		IP:                  f.req.IP,
		OrderDetails:        f.req.OrderDetails,
		ProductDetails:      f.req.ProductDetails,
		Metadata:            f.req.Metadata,
		Origin:              f.req.Origin,
		SubscriptionTrigger: f.req.SubscriptionTrigger,
		Tokenless:           f.token.Created == 0 && f.token.Bin == "",
	})
	if err != nil {
		return err
	}
	f.rules = rules
	f.processor = rules.Processor

	return s.validateDeferred(f, nil)
}

func (s *Service) validateDeferred(f *flow, previous *deferred.Attempt) error {
	var hierarchyOptions []model.DeferredOption
	if f.hierarchy != nil {
		hierarchyOptions = f.hierarchy.DeferredOptions
	}
	return s.Deferred.Validate(deferred.Request{
		Deferred:         f.req.Deferred,
		TransactionType:  f.txType,
		Country:          f.merchant.Country,
		ProcessorName:    f.processor.ProcessorName,
		MerchantOptions:  f.merchant.DeferredOptions,
		HierarchyOptions: hierarchyOptions,
		Previous:         previous,
	})
}

// dispatch consumes the token, once every check has passed, and calls the
// processor.
func (s *Service) dispatch(ctx context.Context, f *flow) error {
	if f.converted == nil {
		conversion, converted, err := s.Converter.Convert(ctx, f.req.Amount)
		if err != nil {
			return err
		}
		f.amount = converted
		f.converted = conversion.ConvertedAmount()
	}

	if err := s.Tokens.Consume(ctx, f.token, map[string]any{"transactionReference": f.token.TransactionReference}); err != nil {
		return err
	}

	f.providerResp, f.providerErr = s.call(ctx, f, *f.token)
	return nil
}

// call performs one processor attempt with the flow's current processor.
func (s *Service) call(ctx context.Context, f *flow, token model.Token) (*model.ProviderResponse, error) {
	legacyNoVault := f.req.Origin == model.OriginSubscription && token.VaultToken == ""
	service, variant, err := s.Router.Resolve(*f.merchant, f.processor, token, legacyNoVault)
	if err != nil {
		return nil, err
	}

	in := provider.ChargeInput{
		Amount:               f.amount,
		Token:                token,
		Merchant:             *f.merchant,
		Processor:            f.processor,
		RuleResponse:         f.rules.Raw,
		IsFailoverRetry:      f.retry,
		Plcc:                 f.rules.Plcc,
		TransactionType:      f.txType,
		Deferred:             f.req.Deferred,
		ThreeDS:              f.req.ThreeDS,
		TransactionReference: token.TransactionReference,
		Metadata:             f.req.Metadata,
	}
	if deadline, ok := ctx.Deadline(); ok {
		in.RemainingTime = time.Until(deadline)
	}

	s.logger.InfoContext(ctx, "Dispatching to processor",
		"variant", string(variant), "processor", f.processor.ProcessorName, "failoverRetry", f.retry)

	if f.txType == model.TransactionTypePreauthorization {
		return service.PreAuthorization(ctx, in)
	}
	return service.Charge(ctx, in)
}

// handleProviderFailure retries exactly once on the failover processor when
// the first processor was unreachable. The failed attempt is recorded while
// the retry runs.
func (s *Service) handleProviderFailure(ctx context.Context, f *flow) (State, error) {
	e := apperr.From(f.providerErr)
	if !e.IsFailoverEligible() || f.retry || f.rules == nil || f.rules.Failover == nil {
		return f.state, f.providerErr
	}

	failed := s.Builder.Declined(*f.attempt(), e)
	previous := &deferred.Attempt{ProcessorName: f.processor.ProcessorName, Deferred: f.req.Deferred}

	f.retry = true
	f.failedAttempt = e
	f.processor = *f.rules.Failover
	if err := s.validateDeferred(f, previous); err != nil {
		s.record(ctx, failed)
		f.recorded = true
		return f.state, f.providerErr
	}

	token := *f.token
	if token.FailoverToken != "" {
		token.ID = token.FailoverToken
		token.VaultToken = ""
	}

	chargeFailoverCounter.Inc()
	s.logger.WarnContext(ctx, "Processor unreachable, retrying on failover processor",
		"failover", f.processor.ProcessorName)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.record(gctx, failed)
		return nil
	})
	g.Go(func() error {
		f.providerResp, f.providerErr = s.call(gctx, f, token)
		return nil
	})
	_ = g.Wait()

	return StateFailoverDispatched, nil
}

// afterFailover reverses a late approval when the caller has too little
// time left to receive it.
func (s *Service) afterFailover(ctx context.Context, f *flow) (State, error) {
	if f.providerErr != nil {
		return f.state, f.providerErr
	}

	deadline, ok := ctx.Deadline()
	if ok && time.Until(deadline) < s.cfg.RemainingTimeThreshold() {
		approved := s.Builder.Approved(*f.attempt(), *f.providerResp)
		s.logger.WarnContext(ctx, "Reversing failover approval, not enough time left",
			"ticketNumber", approved.TicketNumber, "remaining", time.Until(deadline).String())
		chargeReversedCounter.Inc()
		if err := s.Reverser.Chargeback(context.WithoutCancel(ctx), approved, reversalReason); err != nil {
			s.logger.ErrorContext(ctx, "Failed to reverse failover approval", "error", err)
		}
		f.recorded = true
		return f.state, f.failedAttempt
	}
	return StateProviderSuccess, nil
}

func (s *Service) buildResponse(f *flow) error {
	f.tx = s.Builder.Approved(*f.attempt(), *f.providerResp)
	f.body = response.Build(f.req.version(), f.tx, f.providerResp, s.cfg.HidesReference(f.merchant.PublicID))
	return nil
}

func (s *Service) persist(ctx context.Context, f *flow) {
	s.record(ctx, f.tx)
	f.recorded = true
}

func (s *Service) record(ctx context.Context, tx model.Transaction) {
	if err := s.Recorder.Record(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record transaction",
			"transactionId", tx.TransactionID, "status", tx.TransactionStatus, "error", err)
	}
}
