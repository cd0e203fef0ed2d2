package sandbox_test

import (
	"context"
	"log/slog"
	"testing"

	"card-payments/internal/apperr"
	"card-payments/internal/model"
	"card-payments/internal/provider"
	"card-payments/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Charge(t *testing.T) {
	t.Parallel()

	p := sandbox.New(slog.Default())
	in := provider.ChargeInput{Amount: model.Amount{Iva: 12, SubtotalIva: 100}, Token: model.Token{LastFourDigits: "1111"}}

	resp, err := p.Charge(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, resp.TicketNumber, 18)
	assert.Equal(t, 112.0, resp.ApprovedTransactionAmount)

	in.Token.LastFourDigits = sandbox.DeclinedLastFour
	_, err = p.Charge(context.Background(), in)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "005", e.Code)

	in.Token.LastFourDigits = sandbox.UnreachableLastFour
	_, err = p.PreAuthorization(context.Background(), in)
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.True(t, e.IsFailoverEligible())

	in.IsFailoverRetry = true
	_, err = p.PreAuthorization(context.Background(), in)
	assert.NoError(t, err)
}
