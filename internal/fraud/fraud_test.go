package fraud_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"card-payments/internal/apperr"
	"card-payments/internal/fraud"
	"card-payments/internal/model"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScoring struct {
	workflows *fraud.WorkflowResponse
	decisions map[string]*fraud.DecisionResponse
	calls     int
}

func (f *fakeScoring) GetWorkflows(context.Context, model.Merchant, model.Token, fraud.ChargeBody) (*fraud.WorkflowResponse, error) {
	f.calls++
	return f.workflows, nil
}

func (f *fakeScoring) GetDecision(_ context.Context, _ model.Merchant, id string) (*fraud.DecisionResponse, error) {
	return f.decisions[id], nil
}

var scoredMerchant = model.Merchant{
	PublicID:    "m1",
	SiftScience: model.SiftScience{ProdAccountID: "acc", ProdAPIKey: "key", BaconScore: 0.8},
}

var sessionToken = model.Token{ID: "tok", SessionID: "s", UserID: "u"}

func TestChecker_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		req         fraud.CheckRequest
		scoring     *fakeScoring
		expectedErr error
		expectCall  bool
	}{
		{
			name:       "low score passes",
			req:        fraud.CheckRequest{TransactionType: model.TransactionTypeCharge, Token: sessionToken, Merchant: scoredMerchant},
			scoring:    &fakeScoring{workflows: &fraud.WorkflowResponse{Score: 0.3}},
			expectCall: true,
		},
		{
			name:        "score above threshold",
			req:         fraud.CheckRequest{TransactionType: model.TransactionTypeCharge, Token: sessionToken, Merchant: scoredMerchant},
			scoring:     &fakeScoring{workflows: &fraud.WorkflowResponse{Score: 0.81}},
			expectedErr: apperr.ErrFraudRejected,
			expectCall:  true,
		},
		{
			name: "red block decision",
			req:  fraud.CheckRequest{TransactionType: model.TransactionTypePreauthorization, Token: sessionToken, Merchant: scoredMerchant},
			scoring: &fakeScoring{
				workflows: &fraud.WorkflowResponse{Score: 0.1, DecisionIDs: []string{"d1", "d2"}},
				decisions: map[string]*fraud.DecisionResponse{
					"d1": {ID: "d1", Type: "green", Category: "accept"},
					"d2": {ID: "d2", Type: "red", Category: "block"},
				},
			},
			expectedErr: apperr.ErrFraudRejected,
			expectCall:  true,
		},
		{
			name:    "capture is not scored",
			req:     fraud.CheckRequest{TransactionType: model.TransactionTypeCapture, Token: sessionToken, Merchant: scoredMerchant},
			scoring: &fakeScoring{},
		},
		{
			name:    "token without session",
			req:     fraud.CheckRequest{TransactionType: model.TransactionTypeCharge, Token: model.Token{ID: "tok"}, Merchant: scoredMerchant},
			scoring: &fakeScoring{},
		},
		{
			name:    "merchant without scoring",
			req:     fraud.CheckRequest{TransactionType: model.TransactionTypeCharge, Token: sessionToken, Merchant: model.Merchant{PublicID: "m2"}},
			scoring: &fakeScoring{},
		},
		{
			name:    "migrated merchant",
			req:     fraud.CheckRequest{TransactionType: model.TransactionTypeCharge, Token: sessionToken, Merchant: model.Merchant{PublicID: "migrated", SiftScience: scoredMerchant.SiftScience}},
			scoring: &fakeScoring{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := fraud.NewChecker(tt.scoring, []string{"migrated"}, slog.Default()).Check(context.Background(), tt.req)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectCall, tt.scoring.calls > 0)
		})
	}
}

func TestClient(t *testing.T) {
	defer gock.Off()

	gock.New("http://fraud.local").
		Post("/workflows").
		MatchType("json").
		Reply(200).
		JSON(map[string]any{"score": 0.42, "decisionIds": []string{"d1"}})
	gock.New("http://fraud.local").
		Get("/accounts/acc/decisions/d1").
		Reply(200).
		JSON(map[string]any{"id": "d1", "type": "red", "category": "block"})

	client := fraud.NewClient("http://fraud.local", time.Second, slog.Default())

	workflows, err := client.GetWorkflows(context.Background(), scoredMerchant, sessionToken, fraud.ChargeBody{Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, 0.42, workflows.Score)
	assert.Equal(t, []string{"d1"}, workflows.DecisionIDs)

	decision, err := client.GetDecision(context.Background(), scoredMerchant, "d1")
	require.NoError(t, err)
	assert.Equal(t, "red", decision.Type)
	assert.True(t, gock.IsDone())
}

func TestClient_ErrorStatus(t *testing.T) {
	defer gock.Off()

	gock.New("http://fraud.local").
		Post("/workflows").
		Reply(503)

	_, err := fraud.NewClient("http://fraud.local", time.Second, slog.Default()).
		GetWorkflows(context.Background(), scoredMerchant, sessionToken, fraud.ChargeBody{})
	assert.Error(t, err)
}
