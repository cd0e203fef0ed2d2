package amount_test

import (
	"context"
	"encoding/json"
	"testing"

	"card-payments/internal/amount"
	"card-payments/internal/config"
	"card-payments/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestFullAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		amount   model.Amount
		expected float64
	}{
		{
			name:     "base components",
			amount:   model.Amount{Iva: 12, SubtotalIva: 100, SubtotalIva0: 0},
			expected: 112,
		},
		{
			name:     "ice and extra taxes",
			amount:   model.Amount{Iva: 1.2, SubtotalIva: 10, SubtotalIva0: 5, Ice: ptr(0.3), ExtraTaxes: &model.ExtraTaxes{Propina: ptr(2), TasaAeroportuaria: ptr(0.1), StateTax: ptr(0.2)}},
			expected: 18.8,
		},
		{
			name:     "binary fractions sum exactly",
			amount:   model.Amount{Iva: 0.1, SubtotalIva: 0.2},
			expected: 0.3,
		},
		{
			name:     "empty",
			amount:   model.Amount{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, amount.FullAmount(tt.amount))
		})
	}
}

func TestFullAmount_OrderInvariant(t *testing.T) {
	t.Parallel()

	a := model.Amount{Iva: 12, SubtotalIva: 100, ExtraTaxes: &model.ExtraTaxes{Iac: ptr(3), MunicipalTax: ptr(1.5)}}
	b := model.Amount{SubtotalIva: 100, Iva: 12, ExtraTaxes: &model.ExtraTaxes{MunicipalTax: ptr(1.5), Iac: ptr(3)}}
	assert.Equal(t, amount.FullAmount(a), amount.FullAmount(b))
}

func TestRound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.01, amount.Round(1.005, 2))
	assert.Equal(t, 35000.0, amount.Round(34999.5, 0))
	assert.Equal(t, -2.5, amount.Round(-2.45, 1))
}

type fakeInvoker struct {
	body     string
	function string
	payload  any
}

func (f *fakeInvoker) Invoke(_ context.Context, function string, payload any) (json.RawMessage, error) {
	f.function = function
	f.payload = payload
	return json.RawMessage(f.body), nil
}

func TestConverter_Convert(t *testing.T) {
	t.Parallel()

	currency := config.Default().Currency

	t.Run("not required", func(t *testing.T) {
		t.Parallel()
		inv := &fakeInvoker{}
		c := amount.NewConverter(inv, "currencyConversion", currency)

		in := model.Amount{Currency: "USD", Iva: 12, SubtotalIva: 100}
		result, out, err := c.Convert(context.Background(), in)
		require.NoError(t, err)
		assert.False(t, result.Converted)
		assert.Nil(t, result.ConvertedAmount())
		assert.Equal(t, in, out)
		assert.Empty(t, inv.function)
	})

	t.Run("splits iva after rounding the total", func(t *testing.T) {
		t.Parallel()
		inv := &fakeInvoker{body: `{"newCurrency":"CLP","newAmount":35700.4}`}
		c := amount.NewConverter(inv, "currencyConversion", currency)

		result, out, err := c.Convert(context.Background(), model.Amount{Currency: "UF", Iva: 0.19, SubtotalIva: 1})
		require.NoError(t, err)
		assert.True(t, result.Converted)
		assert.Equal(t, "currencyConversion", inv.function)
		assert.Equal(t, 35700.0, result.TotalAmount)
		assert.Equal(t, "CLP", out.Currency)
		assert.Equal(t, 30000.0, out.SubtotalIva)
		assert.Equal(t, 5700.0, out.Iva)
		assert.Equal(t, &model.ConvertedAmount{Currency: "UF", TotalAmount: 1.19}, result.ConvertedAmount())
	})

	t.Run("no iva goes to subtotalIva0", func(t *testing.T) {
		t.Parallel()
		inv := &fakeInvoker{body: `{"newCurrency":"CLP","newAmount":1000.6}`}
		c := amount.NewConverter(inv, "currencyConversion", currency)

		_, out, err := c.Convert(context.Background(), model.Amount{Currency: "UF", SubtotalIva0: 0.03})
		require.NoError(t, err)
		assert.Equal(t, 1001.0, out.SubtotalIva0)
		assert.Zero(t, out.Iva)
		assert.Zero(t, out.SubtotalIva)
	})

	t.Run("residual cent is kept", func(t *testing.T) {
		t.Parallel()
		inv := &fakeInvoker{body: `{"newCurrency":"CLP","newAmount":13}`}
		c := amount.NewConverter(inv, "currencyConversion", currency)

		result, out, err := c.Convert(context.Background(), model.Amount{Currency: "UF", Iva: 1, SubtotalIva: 1})
		require.NoError(t, err)
		assert.Equal(t, 13.0, result.TotalAmount)
		assert.Equal(t, 10.92, out.SubtotalIva)
		assert.Equal(t, 2.07, out.Iva)
		assert.Equal(t, 12.99, amount.FullAmount(out))
	})
}
