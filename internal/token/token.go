// Package token loads card tokens and enforces their single use.
package token

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"card-payments/internal/apperr"
	"card-payments/internal/config"
	"card-payments/internal/model"
	"card-payments/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Resolver bounds every storage call by timeout.
type Resolver struct {
	storage storage.Storage
	cfg     config.Charge
	timeout time.Duration
	logger  *slog.Logger
}

func NewResolver(s storage.Storage, cfg config.Charge, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{storage: s, cfg: cfg, timeout: timeout, logger: logger}
}

// Resolve returns the stored token or, when it is missing, a placeholder
// with created = 0. Legacy merchants get the card data of the last
// transaction charged with the token.
func (r *Resolver) Resolve(ctx context.Context, tokenID string, merchant model.Merchant) (*model.Token, error) {
	var token model.Token
	found, err := r.getToken(ctx, tokenID, &token)
	if err != nil {
		return nil, errors.Wrap(err, "getting token")
	}
	if found {
		if token.TransactionReference == "" {
			token.TransactionReference = uuid.NewString()
		}
		return &token, nil
	}

	placeholder := &model.Token{ID: tokenID, TransactionReference: uuid.NewString()}
	if !slices.Contains(r.cfg.LegacyTokenMerchants, merchant.PublicID) {
		return placeholder, nil
	}

	previous, err := r.lastTransaction(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		r.logger.InfoContext(ctx, "Token rebuilt from previous transaction", "ticketNumber", previous.TicketNumber)
		placeholder.Bin = previous.BinCard
		placeholder.LastFourDigits = previous.LastFourDigits
		placeholder.MaskedCardNumber = previous.MaskedCardNumber
		placeholder.CardHolderName = previous.CardHolderName
		placeholder.BinInfo = &model.BinInfo{
			Bank:    previous.IssuingBank,
			Brand:   previous.PaymentBrand,
			Type:    previous.CardType,
			Country: model.BinCountry{Name: previous.CardCountry},
		}
	}
	return placeholder, nil
}

func (r *Resolver) getToken(ctx context.Context, tokenID string, out *model.Token) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.storage.GetItem(ctx, storage.TableTokens, tokenID, out)
}

func (r *Resolver) tokenTransactions(ctx context.Context, tokenID string) ([]model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var transactions []model.Transaction
	if err := r.storage.Query(ctx, storage.TableTransactions, "token", tokenID, nil, &transactions); err != nil {
		return nil, errors.Wrap(err, "querying token transactions")
	}
	return transactions, nil
}

func (r *Resolver) lastTransaction(ctx context.Context, tokenID string) (*model.Transaction, error) {
	transactions, err := r.tokenTransactions(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if len(transactions) == 0 {
		return nil, nil
	}
	last := slices.MaxFunc(transactions, func(a, b model.Transaction) int {
		return cmp.Compare(a.Created, b.Created)
	})
	return &last, nil
}

// CheckExpired rejects tokens without id and stored tokens older than the
// configured window.
func (r *Resolver) CheckExpired(token *model.Token, now time.Time) error {
	if token == nil || token.ID == "" {
		return apperr.ErrTokenExpired
	}
	if token.Created == 0 {
		return nil
	}
	if now.Sub(time.UnixMilli(token.Created)) > r.cfg.TokenExpiry() {
		return apperr.ErrTokenExpired.WithMetadata(map[string]any{"token": token.ID})
	}
	return nil
}

// CheckAlreadyUsed rejects a stored token that is flagged consumed or that an
// approved transaction references. Placeholders are exempt.
func (r *Resolver) CheckAlreadyUsed(ctx context.Context, token *model.Token) error {
	if token.AlreadyUsed {
		return apperr.ErrTokenAlreadyUsed
	}
	if token.Created == 0 {
		return nil
	}

	transactions, err := r.tokenTransactions(ctx, token.ID)
	if err != nil {
		return err
	}
	// Declines rejected before dispatch leave the token reusable; dispatched
	// attempts are covered by the consumed flag.
	if slices.ContainsFunc(transactions, model.Transaction.Approved) {
		return apperr.ErrTokenAlreadyUsed
	}
	return nil
}

// Consume marks the token used together with patch. A concurrent consumer
// loses with ErrTokenAlreadyUsed.
func (r *Resolver) Consume(ctx context.Context, token *model.Token, patch map[string]any) error {
	values := map[string]any{"alreadyUsed": true}
	for k, v := range patch {
		values[k] = v
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	found, err := r.storage.UpdateTokenValue(ctx, token.ID, values)
	if errors.Is(err, storage.ErrConditionalCheckFailed) {
		return apperr.ErrTokenAlreadyUsed
	}
	if err != nil {
		return errors.Wrap(err, "consuming token")
	}
	if !found {
		r.logger.DebugContext(ctx, "Token not stored, nothing to consume", "token", token.ID)
	}
	token.AlreadyUsed = true
	return nil
}
