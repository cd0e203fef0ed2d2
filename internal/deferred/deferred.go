// Package deferred validates installment selections against the options a
// merchant offers.
package deferred

import (
	"slices"
	"strconv"

	"card-payments/internal/apperr"
	"card-payments/internal/config"
	"card-payments/internal/model"
)

const allCreditTypes = "ALL"

// Attempt is the processor and selection used by a previous attempt of the
// same charge.
type Attempt struct {
	ProcessorName string
	Deferred      *model.Deferred
}

type Request struct {
	Deferred         *model.Deferred
	TransactionType  model.TransactionType
	Country          string
	ProcessorName    string
	MerchantOptions  []model.DeferredOption
	HierarchyOptions []model.DeferredOption
	Previous         *Attempt
}

type Engine struct {
	cfg     config.Deferred
	catalog []model.DeferredOption
}

func NewEngine(cfg config.Deferred) *Engine {
	months := make([]string, 0, cfg.CatalogMaxMonths-cfg.CatalogMinMonths+1)
	for m := cfg.CatalogMinMonths; m <= cfg.CatalogMaxMonths; m++ {
		months = append(months, strconv.Itoa(m))
	}
	return &Engine{
		cfg:     cfg,
		catalog: []model.DeferredOption{{DeferredType: []string{allCreditTypes}, Months: months}},
	}
}

func (e *Engine) Validate(req Request) error {
	if req.Deferred == nil {
		return nil
	}

	options := req.MerchantOptions
	switch {
	case req.Country == e.cfg.BrazilCountry:
		if req.TransactionType != model.TransactionTypeDeferred {
			return nil
		}
		if len(req.HierarchyOptions) > 0 {
			options = req.HierarchyOptions
		}
	case slices.Contains(e.cfg.CatalogCountries, req.Country):
		options = e.catalog
	}

	if e.repeated(req) {
		return apperr.ErrDeferredRepeated.WithMetadata(details(req.Deferred))
	}

	for _, option := range options {
		if matches(option, *req.Deferred) {
			return nil
		}
	}
	return apperr.ErrDeferredOptions.WithMetadata(details(req.Deferred))
}

// repeated reports a retry on the Central America processor that reuses the
// previous selection.
func (e *Engine) repeated(req Request) bool {
	if req.ProcessorName != e.cfg.CentralAmericaProcessor || req.Previous == nil || req.Previous.Deferred == nil {
		return false
	}
	if req.Previous.ProcessorName != req.ProcessorName {
		return false
	}
	prev, cur := req.Previous.Deferred, req.Deferred
	return prev.Months == cur.Months && prev.CreditType == cur.CreditType && prev.GraceMonths == cur.GraceMonths
}

func matches(option model.DeferredOption, d model.Deferred) bool {
	if !slices.Contains(option.Months, strconv.Itoa(d.Months)) {
		return false
	}
	return slices.Contains(option.DeferredType, allCreditTypes) || slices.Contains(option.DeferredType, d.CreditType)
}

func details(d *model.Deferred) map[string]any {
	return map[string]any{"months": d.Months, "creditType": d.CreditType}
}
