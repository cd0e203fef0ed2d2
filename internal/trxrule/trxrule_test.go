package trxrule_test

import (
	"context"
	"encoding/json"
	"testing"

	"card-payments/internal/model"
	"card-payments/internal/trxrule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	body    string
	payload any
}

func (f *fakeInvoker) Invoke(_ context.Context, _ string, payload any) (json.RawMessage, error) {
	f.payload = payload
	return json.RawMessage(f.body), nil
}

type fakeBins struct {
	calls   int
	private bool
}

func (f *fakeBins) Lookup(_ context.Context, _ string, isPrivateCard bool, _ string) *model.BinInfo {
	f.calls++
	f.private = isPrivateCard
	return &model.BinInfo{Brand: "ALIA"}
}

func detailOf(t *testing.T, payload any) map[string]any {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	var out map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out["detail"]
}

func TestInvoker_Invoke(t *testing.T) {
	t.Parallel()

	t.Run("maps processor and failover", func(t *testing.T) {
		t.Parallel()
		inv := &fakeInvoker{body: `{
			"processor": "Credimatic Processor", "publicId": "pub", "privateId": "priv", "acquirerBank": "Banco",
			"subMccCode": "5411", "categoryModel": "GAMING", "integration": "direct",
			"failOverProcessor": {"processor": "Datafast Processor", "publicId": "pub2", "processorType": "aggregator"}
		}`}
		bins := &fakeBins{}

		result, err := trxrule.NewInvoker(inv, "transactionRule", bins).Invoke(context.Background(), trxrule.Request{
			Token: model.Token{Bin: "411111"},
		})
		require.NoError(t, err)
		assert.Equal(t, model.Processor{
			ProcessorName: "Credimatic Processor", PublicID: "pub", PrivateID: "priv", ProcessorType: model.ProcessorTypeGateway,
			AcquirerBank: "Banco", SubMccCode: "5411", CategoryModel: "GAMING", Integration: "direct",
		}, result.Processor)
		require.NotNil(t, result.Failover)
		assert.Equal(t, "Datafast Processor", result.Failover.ProcessorName)
		assert.Equal(t, "aggregator", result.Failover.ProcessorType)
		assert.Nil(t, result.Plcc)
		assert.Equal(t, "Credimatic Processor", result.Raw["processor"])
		assert.Zero(t, bins.calls)
	})

	t.Run("plcc resolves private bin info", func(t *testing.T) {
		t.Parallel()
		inv := &fakeInvoker{body: `{"processor": "Alia Processor", "plcc": "1"}`}
		bins := &fakeBins{}

		result, err := trxrule.NewInvoker(inv, "transactionRule", bins).Invoke(context.Background(), trxrule.Request{
			Token: model.Token{Bin: "601111"},
		})
		require.NoError(t, err)
		require.NotNil(t, result.Plcc)
		assert.Equal(t, "ALIA", result.Plcc.Brand)
		assert.True(t, bins.private)
	})

	t.Run("tokenless skips plcc", func(t *testing.T) {
		t.Parallel()
		inv := &fakeInvoker{body: `{"processor": "Alia Processor", "plcc": "1"}`}
		bins := &fakeBins{}

		result, err := trxrule.NewInvoker(inv, "transactionRule", bins).Invoke(context.Background(), trxrule.Request{Tokenless: true})
		require.NoError(t, err)
		assert.Nil(t, result.Plcc)
		assert.Zero(t, bins.calls)
	})
}

func TestBuildPayload(t *testing.T) {
	t.Parallel()

	base := trxrule.Request{
		Token: model.Token{
			Bin: "411111", LastFourDigits: "1111", IsDeferred: true, SecureID: "sid", SecureService: "otp",
			BinInfo: &model.BinInfo{Brand: "VISA", Bank: "Pichincha", Type: "credit"},
		},
		Merchant:        model.Merchant{PublicID: "m1", MerchantName: "Shop", Country: "Ecuador"},
		Hierarchy:       &model.Hierarchy{ParentMerchantID: "parent"},
		Amount:          model.Amount{Currency: "USD", Iva: 12, SubtotalIva: 100},
		TransactionType: model.TransactionTypeCharge,
	}

	t.Run("charge", func(t *testing.T) {
		t.Parallel()
		d := detailOf(t, trxrule.BuildPayload(base))
		assert.Equal(t, "true", d["isDeferred"])
		assert.Equal(t, "VISA", d["brand"])
		assert.Equal(t, "parent", d["parentMerchantId"])
		assert.Equal(t, 112.0, d["amount"].(map[string]any)["totalAmount"])
		assert.NotNil(t, d["otp"])
	})

	t.Run("subscription forces non deferred", func(t *testing.T) {
		t.Parallel()
		req := base
		req.Origin = model.OriginSubscription
		assert.Equal(t, "false", detailOf(t, trxrule.BuildPayload(req))["isDeferred"])

		req.SubscriptionTrigger = model.SubscriptionTriggerOnDemand
		assert.Equal(t, "true", detailOf(t, trxrule.BuildPayload(req))["isDeferred"])
	})

	t.Run("commission omits otp", func(t *testing.T) {
		t.Parallel()
		req := base
		req.Origin = model.OriginCommission
		_, ok := detailOf(t, trxrule.BuildPayload(req))["otp"]
		assert.False(t, ok)
	})
}
