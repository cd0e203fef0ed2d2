package response_test

import (
	"encoding/json"
	"testing"

	"card-payments/internal/model"
	"card-payments/internal/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tx = model.Transaction{
	TransactionID:        "trx-1",
	TicketNumber:         "T-100",
	TransactionReference: "ref-100",
	TransactionStatus:    model.TransactionStatusApproval,
	TransactionType:      model.TransactionTypeCharge,
	CurrencyCode:         "USD",
	IvaValue:             12,
	SubtotalIva:          100,
	BinCard:              "411111",
	PaymentBrand:         "VISA",
	ProcessorName:        "Credimatic Processor",
	IsDeferred:           true,
	NumberOfMonths:       3,
	RuleResponse:         map[string]any{"processor": "Credimatic Processor"},
}

func TestFullResponse_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body     string
		expected response.Version
		invalid  bool
	}{
		{body: `{"fullResponse": true}`, expected: response.VersionV1},
		{body: `{"fullResponse": "v2"}`, expected: response.VersionV2},
		{body: `{"fullResponse": false}`, expected: response.VersionNone},
		{body: `{}`, expected: response.VersionNone},
		{body: `{"fullResponse": "v9"}`, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			t.Parallel()
			var req struct {
				FullResponse response.FullResponse `json:"fullResponse"`
			}
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.invalid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, req.FullResponse.Version)
		})
	}
}

func TestBuild_V1RoundTrip(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(response.Build(response.VersionV1, tx, nil, false))
	require.NoError(t, err)

	var got response.V1
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, tx.TicketNumber, got.TicketNumber)
	assert.Equal(t, tx.TransactionReference, got.TransactionReference)
	assert.Equal(t, "Y", got.Details.IsDeferred)
	assert.Equal(t, "VISA", got.Details.PaymentBrand)
}

func TestBuild_Versions(t *testing.T) {
	t.Parallel()

	none, ok := response.Build(response.VersionNone, tx, nil, false).(response.None)
	require.True(t, ok)
	assert.Equal(t, response.None{TicketNumber: "T-100", TransactionReference: "ref-100"}, none)

	v2, ok := response.Build(response.VersionV2, tx, nil, false).(response.V2)
	require.True(t, ok)
	assert.Equal(t, "411111", v2.Details.BinInfo.Bin)
	assert.Equal(t, "Credimatic Processor", v2.Details.Rules["processor"])
	require.NotNil(t, v2.Details.Deferred)
	assert.Equal(t, 3, v2.Details.Deferred.Months)

	raw := &model.ProviderResponse{TicketNumber: "T-100", ResponseCode: "000"}
	assert.Same(t, raw, response.Build(response.VersionRaw, tx, raw, false))
}

func TestBuild_HidesReference(t *testing.T) {
	t.Parallel()

	for _, v := range []response.Version{response.VersionNone, response.VersionV1, response.VersionV2} {
		data, err := json.Marshal(response.Build(v, tx, nil, true))
		require.NoError(t, err)
		assert.NotContains(t, string(data), "transactionReference")
		assert.Contains(t, string(data), "T-100")
	}
}
