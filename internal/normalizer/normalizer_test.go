package normalizer_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"card-payments/internal/apperr"
	"card-payments/internal/config"
	"card-payments/internal/model"
	"card-payments/internal/normalizer"
	"card-payments/internal/response"
	"card-payments/internal/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	records []model.Transaction
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, tx model.Transaction) error {
	f.records = append(f.records, tx)
	return f.err
}

func newNormalizer(rec *fakeRecorder) *normalizer.Normalizer {
	charge := config.Default().Charge
	charge.ReferenceDenyList = []string{"hidden"}
	return normalizer.New(transaction.NewBuilder(), rec, charge, slog.Default())
}

func attempt(merchantID string) *transaction.Attempt {
	return &transaction.Attempt{
		Type:     model.TransactionTypeCharge,
		Token:    model.Token{ID: "tok", Bin: "411111", TransactionReference: "ref-1"},
		Merchant: model.Merchant{PublicID: merchantID, MerchantName: "Shop"},
		Amount:   model.Amount{Currency: "USD", SubtotalIva0: 10},
	}
}

func TestNormalize_RecordsDeclinedAttempt(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	err := newNormalizer(rec).Normalize(context.Background(), apperr.ErrThresholdAmount, normalizer.Context{Attempt: attempt("m1")})

	assert.ErrorIs(t, err, apperr.ErrThresholdAmount)
	require.Len(t, rec.records, 1)
	assert.Equal(t, model.TransactionStatusDeclined, rec.records[0].TransactionStatus)
	assert.Equal(t, "K015", rec.records[0].ResponseCode)
}

func TestNormalize_RecordFailureKeepsCallerError(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{err: errors.New("queue unavailable")}
	err := newNormalizer(rec).Normalize(context.Background(), apperr.ErrThresholdAmount, normalizer.Context{Attempt: attempt("m1")})

	assert.ErrorIs(t, err, apperr.ErrThresholdAmount)
	assert.Equal(t, "K015", err.Code)
	assert.Len(t, rec.records, 1)
}

func TestNormalize_UnknownContextIsNotRecorded(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	sut := newNormalizer(rec)

	err := sut.Normalize(context.Background(), apperr.ErrMerchantNotFound, normalizer.Context{})
	assert.ErrorIs(t, err, apperr.ErrMerchantNotFound)

	noToken := attempt("m1")
	noToken.Token.ID = ""
	sut.Normalize(context.Background(), apperr.ErrTokenExpired, normalizer.Context{Attempt: noToken})

	assert.Empty(t, rec.records)
}

func TestNormalize_CoercesUnknownErrors(t *testing.T) {
	t.Parallel()

	err := newNormalizer(&fakeRecorder{}).Normalize(context.Background(), errors.New("boom"), normalizer.Context{})
	assert.ErrorIs(t, err, apperr.ErrInternal)

	err = newNormalizer(&fakeRecorder{}).Normalize(context.Background(), context.DeadlineExceeded, normalizer.Context{})
	assert.ErrorIs(t, err, apperr.ErrExternalTimeout)
}

func TestNormalize_V2Metadata(t *testing.T) {
	t.Parallel()

	providerErr := apperr.NewProviderError("005", "Declined by issuer.", map[string]any{
		"ticketNumber": "T-1", "security3Ds": map[string]any{"cavv": "x"}, "vaultToken": "v",
	})

	t.Run("merged for v2", func(t *testing.T) {
		t.Parallel()
		err := newNormalizer(&fakeRecorder{}).Normalize(context.Background(), providerErr,
			normalizer.Context{Attempt: attempt("m1"), Version: response.VersionV2})

		assert.Equal(t, "005", err.Code)
		assert.Equal(t, "411111", err.Metadata["binCard"])
		assert.Equal(t, "ref-1", err.Metadata["transactionReference"])
		assert.Equal(t, "Shop", err.Metadata["merchantName"])
		assert.NotContains(t, err.Metadata, "security3Ds")
		assert.NotContains(t, err.Metadata, "vaultToken")
	})

	t.Run("subscriptions are not enriched", func(t *testing.T) {
		t.Parallel()
		err := newNormalizer(&fakeRecorder{}).Normalize(context.Background(), providerErr,
			normalizer.Context{Attempt: attempt("m1"), Version: response.VersionV2, Origin: model.OriginSubscription})

		assert.NotContains(t, err.Metadata, "binCard")
		assert.Equal(t, "T-1", err.Metadata["ticketNumber"])
	})

	t.Run("deny listed merchant loses reference", func(t *testing.T) {
		t.Parallel()
		err := newNormalizer(&fakeRecorder{}).Normalize(context.Background(), providerErr,
			normalizer.Context{Attempt: attempt("hidden"), Version: response.VersionV2})

		assert.NotContains(t, err.Metadata, "transactionReference")
		assert.Equal(t, "411111", err.Metadata["binCard"])
	})

	t.Run("catalog entries stay untouched", func(t *testing.T) {
		t.Parallel()
		newNormalizer(&fakeRecorder{}).Normalize(context.Background(), apperr.ErrBadBin,
			normalizer.Context{Attempt: attempt("m1"), Version: response.VersionV2})
		assert.Empty(t, apperr.ErrBadBin.Metadata)
	})
}
