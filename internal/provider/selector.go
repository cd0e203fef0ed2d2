package provider

import (
	"slices"
	"strings"

	"card-payments/internal/config"
	"card-payments/internal/model"
)

const (
	ModeDedicated  = "dedicated"
	ModeDirectOnly = "direct-only"
	ModeAllowList  = "allow-list"
	ModeBinSplit   = "bin-split"

	allowAll = "all"
)

type SelectRequest struct {
	ProcessorName string
	ProcessorID   string
	Bin           string
	Integration   string
	// LegacyNoVault marks a subscription charged with a token that has no
	// vault token. Those never leave the default variant.
	LegacyNoVault bool
}

// Selector picks the variant for the staged direct-integration rollout. It
// only reads its routing table, so equal inputs give equal variants.
type Selector struct {
	routing config.Routing
}

func NewSelector(routing config.Routing) *Selector {
	return &Selector{routing: routing}
}

func (s *Selector) Select(base Variant, req SelectRequest) Variant {
	if base == Variant(s.routing.SandboxVariant) {
		return base
	}
	dp, ok := s.routing.DirectProcessor(req.ProcessorName)
	if !ok {
		return base
	}

	mapped := Variant(dp.Variant)
	fallback := Variant(s.routing.DefaultVariant)
	direct := strings.EqualFold(req.Integration, model.IntegrationDirect)

	switch dp.Mode {
	case ModeDedicated:
		if direct || dp.GloballyDirect {
			return mapped
		}
		return fallback
	case ModeDirectOnly:
		if direct {
			return mapped
		}
		return fallback
	}

	allowed := s.routing.AllowedProcessorIDs(dp.Variant)
	if slices.Contains(allowed, allowAll) && !req.LegacyNoVault {
		return mapped
	}
	if req.LegacyNoVault || !slices.Contains(allowed, req.ProcessorID) {
		return fallback
	}
	if dp.Mode != ModeBinSplit {
		return mapped
	}

	bins := s.routing.AllowedBins(req.ProcessorID)
	switch {
	case slices.Contains(bins, allowAll):
		return Variant(dp.AllVariant)
	case req.Bin != "" && slices.Contains(bins, req.Bin):
		return Variant(dp.BinVariant)
	default:
		return fallback
	}
}
