package amount

import (
	"context"

	"card-payments/internal/config"
	"card-payments/internal/invoker"
	"card-payments/internal/model"
	"github.com/shopspring/decimal"
)

type ConversionResult struct {
	Converted        bool    `json:"converted"`
	OriginalCurrency string  `json:"originalCurrency"`
	OriginalAmount   float64 `json:"originalAmount"`
	Currency         string  `json:"currency"`
	TotalAmount      float64 `json:"totalAmount"`
}

// ConvertedAmount returns the record stored on the transaction, nil when the
// amount was not converted.
func (r ConversionResult) ConvertedAmount() *model.ConvertedAmount {
	if !r.Converted {
		return nil
	}
	return &model.ConvertedAmount{Currency: r.OriginalCurrency, TotalAmount: r.OriginalAmount}
}

type conversionRequest struct {
	Currency    string  `json:"currency"`
	TotalAmount float64 `json:"totalAmount"`
}

type conversionResponse struct {
	Currency    string  `json:"newCurrency"`
	TotalAmount float64 `json:"newAmount"`
}

type Converter struct {
	invoker  invoker.Invoker
	function string
	currency config.Currency
}

func NewConverter(inv invoker.Invoker, function string, currency config.Currency) *Converter {
	return &Converter{invoker: inv, function: function, currency: currency}
}

// Convert rewrites a unit-of-account amount into the settlement currency.
// The converted total is rounded to whole units and then split into
// subtotal and IVA, each rounded to cents on its own, so the parts may be
// off by one cent from the total.
func (c *Converter) Convert(ctx context.Context, a model.Amount) (ConversionResult, model.Amount, error) {
	if !c.currency.NeedsConversion(a.Currency) {
		return ConversionResult{Currency: a.Currency, TotalAmount: FullAmount(a)}, a, nil
	}

	original := FullAmount(a)
	resp, err := invoker.Invoke[conversionResponse](ctx, c.invoker, c.function, conversionRequest{
		Currency:    a.Currency,
		TotalAmount: original,
	})
	if err != nil {
		return ConversionResult{}, a, err
	}

	total := decimal.NewFromFloat(resp.TotalAmount).Round(0)
	converted := model.Amount{Currency: resp.Currency}

	if a.Iva == 0 && a.SubtotalIva == 0 {
		converted.SubtotalIva0 = total.InexactFloat64()
	} else {
		rate := decimal.NewFromFloat(c.currency.IvaRate(resp.Currency)).Round(2)
		subtotal := total.Div(decimal.NewFromInt(1).Add(rate)).Round(2)
		converted.SubtotalIva = subtotal.InexactFloat64()
		converted.Iva = subtotal.Mul(rate).Round(2).InexactFloat64()
	}

	return ConversionResult{
		Converted:        true,
		OriginalCurrency: a.Currency,
		OriginalAmount:   original,
		Currency:         resp.Currency,
		TotalAmount:      total.InexactFloat64(),
	}, converted, nil
}
