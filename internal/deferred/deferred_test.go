package deferred_test

import (
	"testing"

	"card-payments/internal/apperr"
	"card-payments/internal/config"
	"card-payments/internal/deferred"
	"card-payments/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestEngine_Validate(t *testing.T) {
	t.Parallel()

	merchantOptions := []model.DeferredOption{{DeferredType: []string{"01", "02"}, Months: []string{"3", "6"}}}
	parentOptions := []model.DeferredOption{{DeferredType: []string{"ALL"}, Months: []string{"10"}}}

	tests := []struct {
		name        string
		req         deferred.Request
		expectedErr error
	}{
		{
			name: "no deferred selection",
			req:  deferred.Request{MerchantOptions: merchantOptions},
		},
		{
			name: "matching option",
			req:  deferred.Request{Deferred: &model.Deferred{CreditType: "02", Months: 6}, MerchantOptions: merchantOptions},
		},
		{
			name:        "months not offered",
			req:         deferred.Request{Deferred: &model.Deferred{CreditType: "02", Months: 12}, MerchantOptions: merchantOptions},
			expectedErr: apperr.ErrDeferredOptions,
		},
		{
			name:        "credit type not offered",
			req:         deferred.Request{Deferred: &model.Deferred{CreditType: "03", Months: 3}, MerchantOptions: merchantOptions},
			expectedErr: apperr.ErrDeferredOptions,
		},
		{
			name: "catalog country ignores merchant options",
			req:  deferred.Request{Deferred: &model.Deferred{CreditType: "07", Months: 48}, Country: "Colombia"},
		},
		{
			name:        "catalog country bounds",
			req:         deferred.Request{Deferred: &model.Deferred{CreditType: "07", Months: 1}, Country: "Peru"},
			expectedErr: apperr.ErrDeferredOptions,
		},
		{
			name: "brazil skips non deferred types",
			req: deferred.Request{
				Deferred: &model.Deferred{CreditType: "99", Months: 99}, Country: "Brazil",
				TransactionType: model.TransactionTypeCharge,
			},
		},
		{
			name: "brazil prefers parent options",
			req: deferred.Request{
				Deferred: &model.Deferred{CreditType: "05", Months: 10}, Country: "Brazil",
				TransactionType: model.TransactionTypeDeferred, MerchantOptions: merchantOptions, HierarchyOptions: parentOptions,
			},
		},
		{
			name: "brazil without parent uses merchant options",
			req: deferred.Request{
				Deferred: &model.Deferred{CreditType: "05", Months: 10}, Country: "Brazil",
				TransactionType: model.TransactionTypeDeferred, MerchantOptions: merchantOptions,
			},
			expectedErr: apperr.ErrDeferredOptions,
		},
		{
			name: "central america retry repeats selection",
			req: deferred.Request{
				Deferred: &model.Deferred{CreditType: "01", Months: 3}, ProcessorName: "BAC Processor", MerchantOptions: merchantOptions,
				Previous: &deferred.Attempt{ProcessorName: "BAC Processor", Deferred: &model.Deferred{CreditType: "01", Months: 3}},
			},
			expectedErr: apperr.ErrDeferredRepeated,
		},
		{
			name: "central america retry with new selection",
			req: deferred.Request{
				Deferred: &model.Deferred{CreditType: "01", Months: 6}, ProcessorName: "BAC Processor", MerchantOptions: merchantOptions,
				Previous: &deferred.Attempt{ProcessorName: "BAC Processor", Deferred: &model.Deferred{CreditType: "01", Months: 3}},
			},
		},
		{
			name: "other processor may repeat",
			req: deferred.Request{
				Deferred: &model.Deferred{CreditType: "01", Months: 3}, ProcessorName: "Datafast Processor", MerchantOptions: merchantOptions,
				Previous: &deferred.Attempt{ProcessorName: "Datafast Processor", Deferred: &model.Deferred{CreditType: "01", Months: 3}},
			},
		},
	}

	sut := deferred.NewEngine(config.Default().Deferred)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := sut.Validate(tt.req)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
