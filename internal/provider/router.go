package provider

import (
	"card-payments/internal/config"
	"card-payments/internal/model"
)

type Router struct {
	registry *Registry
	selector *Selector
	routing  config.Routing
}

func NewRouter(registry *Registry, routing config.Routing) *Router {
	return &Router{registry: registry, selector: NewSelector(routing), routing: routing}
}

// Resolve picks the service for one attempt. Sandbox merchants always stay
// on the sandbox variant.
func (r *Router) Resolve(merchant model.Merchant, processor model.Processor, token model.Token, legacyNoVault bool) (Service, Variant, error) {
	base := Variant(r.routing.DefaultVariant)
	if merchant.SandboxEnable {
		base = Variant(r.routing.SandboxVariant)
	}

	variant := r.selector.Select(base, SelectRequest{
		ProcessorName: processor.ProcessorName,
		ProcessorID:   processor.PublicID,
		Bin:           token.Bin,
		Integration:   processor.Integration,
		LegacyNoVault: legacyNoVault,
	})

	service, err := r.registry.Get(variant)
	if err != nil {
		return nil, variant, err
	}
	return service, variant, nil
}
