package provider_test

import (
	"testing"

	"card-payments/internal/config"
	"card-payments/internal/model"
	"card-payments/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routing() config.Routing {
	return config.Routing{
		DefaultVariant: "aurus",
		SandboxVariant: "sandbox",
		DirectProcessors: []config.DirectProcessor{
			{Processor: "Transbank Processor", Variant: "transbank", Mode: provider.ModeDedicated, GloballyDirect: true},
			{Processor: "Prosa Processor", Variant: "prosa", Mode: provider.ModeDedicated},
			{Processor: "Credimatic Processor", Variant: "credimatic", Mode: provider.ModeDirectOnly},
			{Processor: "Niubiz Processor", Variant: "niubiz", Mode: provider.ModeAllowList},
			{Processor: "Fis Processor", Variant: "fis", Mode: provider.ModeAllowList},
			{Processor: "Redeban Processor", Variant: "redeban", Mode: provider.ModeBinSplit, AllVariant: "redeban", BinVariant: "redeban-bin"},
		},
		MerchantAllowList: []config.MerchantAllowList{
			{Variant: "niubiz", ProcessorIDs: []string{"all"}},
			{Variant: "fis", ProcessorIDs: []string{"p-fis"}},
			{Variant: "redeban", ProcessorIDs: []string{"p-all-bins", "p-some-bins"}},
		},
		BinAllowList: []config.BinAllowList{
			{ProcessorID: "p-all-bins", Bins: []string{"all"}},
			{ProcessorID: "p-some-bins", Bins: []string{"411111"}},
		},
	}
}

func TestSelector_Select(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     provider.Variant
		req      provider.SelectRequest
		expected provider.Variant
	}{
		{
			name:     "sandbox always wins",
			base:     "sandbox",
			req:      provider.SelectRequest{ProcessorName: "Transbank Processor", Integration: model.IntegrationDirect},
			expected: "sandbox",
		},
		{
			name:     "unknown processor keeps base",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Datafast Processor"},
			expected: "aurus",
		},
		{
			name:     "dedicated globally direct",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Transbank Processor", Integration: "aurus"},
			expected: "transbank",
		},
		{
			name:     "dedicated needs direct integration",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Prosa Processor", Integration: "aurus"},
			expected: "aurus",
		},
		{
			name:     "dedicated direct integration",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Prosa Processor", Integration: "DIRECT"},
			expected: "prosa",
		},
		{
			name:     "direct only",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Credimatic Processor", Integration: model.IntegrationDirect},
			expected: "credimatic",
		},
		{
			name:     "direct only falls back",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Credimatic Processor"},
			expected: "aurus",
		},
		{
			name:     "allow list all",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Niubiz Processor", ProcessorID: "any"},
			expected: "niubiz",
		},
		{
			name:     "allow list all but legacy no vault",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Niubiz Processor", ProcessorID: "any", LegacyNoVault: true},
			expected: "aurus",
		},
		{
			name:     "allow listed processor id",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Fis Processor", ProcessorID: "p-fis"},
			expected: "fis",
		},
		{
			name:     "processor id not allow listed",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Fis Processor", ProcessorID: "other"},
			expected: "aurus",
		},
		{
			name:     "bin split all bins",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Redeban Processor", ProcessorID: "p-all-bins", Bin: "522222"},
			expected: "redeban",
		},
		{
			name:     "bin split listed bin",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Redeban Processor", ProcessorID: "p-some-bins", Bin: "411111"},
			expected: "redeban-bin",
		},
		{
			name:     "bin split unlisted bin",
			base:     "aurus",
			req:      provider.SelectRequest{ProcessorName: "Redeban Processor", ProcessorID: "p-some-bins", Bin: "522222"},
			expected: "aurus",
		},
	}

	sut := provider.NewSelector(routing())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sut.Select(tt.base, tt.req))
		})
	}
}

func TestSelector_Deterministic(t *testing.T) {
	t.Parallel()

	sut := provider.NewSelector(routing())
	req := provider.SelectRequest{ProcessorName: "Redeban Processor", ProcessorID: "p-some-bins", Bin: "411111", Integration: "aurus"}

	first := sut.Select("aurus", req)
	for range 100 {
		assert.Equal(t, first, sut.Select("aurus", req))
	}
}

type stubService struct{ provider.Service }

func TestRouter_Resolve(t *testing.T) {
	t.Parallel()

	aurus, sandbox, transbank := &stubService{}, &stubService{}, &stubService{}
	registry := provider.NewRegistry().
		Register("aurus", aurus).
		Register("sandbox", sandbox).
		Register("transbank", transbank)
	sut := provider.NewRouter(registry, routing())

	svc, variant, err := sut.Resolve(model.Merchant{}, model.Processor{ProcessorName: "Transbank Processor"}, model.Token{}, false)
	require.NoError(t, err)
	assert.Equal(t, provider.Variant("transbank"), variant)
	assert.Same(t, transbank, svc)

	svc, variant, err = sut.Resolve(model.Merchant{SandboxEnable: true}, model.Processor{ProcessorName: "Transbank Processor"}, model.Token{}, false)
	require.NoError(t, err)
	assert.Equal(t, provider.Variant("sandbox"), variant)
	assert.Same(t, sandbox, svc)

	_, _, err = sut.Resolve(model.Merchant{}, model.Processor{ProcessorName: "Niubiz Processor"}, model.Token{}, false)
	assert.Error(t, err)
}
