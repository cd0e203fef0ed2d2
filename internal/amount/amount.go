// Package amount aggregates and converts request amounts. All arithmetic runs
// on decimals and is rounded half away from zero.
package amount

import (
	"card-payments/internal/model"
	"github.com/shopspring/decimal"
)

// Full sums every present component of a as a decimal rounded to cents.
func Full(a model.Amount) decimal.Decimal {
	total := decimal.NewFromFloat(a.Iva).
		Add(decimal.NewFromFloat(a.SubtotalIva)).
		Add(decimal.NewFromFloat(a.SubtotalIva0)).
		Add(optional(a.Ice))

	if t := a.ExtraTaxes; t != nil {
		for _, v := range []*float64{t.AgenciaDeViaje, t.Iac, t.Propina, t.TasaAeroportuaria, t.StateTax, t.MunicipalTax, t.ReducedStateTax} {
			total = total.Add(optional(v))
		}
	}
	return total.Round(2)
}

// FullAmount is Full as a float, the shape stored on transactions.
func FullAmount(a model.Amount) float64 {
	return Full(a).InexactFloat64()
}

func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func optional(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}
