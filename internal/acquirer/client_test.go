package acquirer_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"card-payments/internal/acquirer"
	"card-payments/internal/apperr"
	"card-payments/internal/model"
	"card-payments/internal/provider"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Charge(t *testing.T) {
	tests := []struct {
		name         string
		mockResponse func()
		timeout      time.Duration
		expectedCode string
		expectedErr  error
	}{
		{
			name: "Approved",
			mockResponse: func() {
				gock.New("http://acquirer.local").
					Post("/charge").
					MatchType("json").
					Reply(200).
					JSON(model.ProviderResponse{TicketNumber: "T-1", ResponseCode: "000", ApprovalCode: "123456"})
			},
			timeout: time.Second,
		},
		{
			name: "Declined",
			mockResponse: func() {
				gock.New("http://acquirer.local").
					Post("/charge").
					Reply(402).
					JSON(map[string]any{"code": "005", "message": "Do not honor", "metadata": map[string]any{"ticketNumber": "T-2"}})
			},
			timeout:      time.Second,
			expectedCode: "005",
		},
		{
			name: "Timeout",
			mockResponse: func() {
				gock.New("http://acquirer.local").
					Post("/charge").
					Reply(200).
					Delay(300 * time.Millisecond).
					JSON(model.ProviderResponse{TicketNumber: "late"})
			},
			timeout:      30 * time.Millisecond,
			expectedCode: apperr.ProcessorUnreachableCode,
		},
		{
			name: "Unparseable error",
			mockResponse: func() {
				gock.New("http://acquirer.local").
					Post("/charge").
					Reply(500).
					BodyString("oops")
			},
			timeout:     time.Second,
			expectedErr: apperr.ErrInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.mockResponse()

			client := acquirer.NewClient("aurus", "http://acquirer.local", tt.timeout, slog.Default())
			resp, err := client.Charge(context.Background(), provider.ChargeInput{
				Amount: model.Amount{Currency: "USD", SubtotalIva0: 10},
				Token:  model.Token{ID: "tok"},
			})

			switch {
			case tt.expectedCode != "":
				e, ok := apperr.As(err)
				require.True(t, ok)
				assert.Equal(t, tt.expectedCode, e.Code)
				assert.Equal(t, apperr.FamilyProvider, e.Family)
			case tt.expectedErr != nil:
				assert.ErrorIs(t, apperr.From(err), tt.expectedErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, "T-1", resp.TicketNumber)
				assert.True(t, gock.IsDone())
			}
		})
	}
}

func TestClient_CaptureTimeoutIsInfrastructure(t *testing.T) {
	defer gock.Off()

	gock.New("http://acquirer.local").
		Post("/capture").
		Reply(200).
		Delay(300 * time.Millisecond).
		JSON(model.ProviderResponse{})

	client := acquirer.NewClient("aurus", "http://acquirer.local", 30*time.Millisecond, slog.Default())
	_, err := client.Capture(context.Background(), provider.CaptureInput{})
	assert.ErrorIs(t, err, apperr.ErrExternalTimeout)
}
