package chargeback_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"card-payments/internal/chargeback"
	"card-payments/internal/config"
	"card-payments/internal/invoker"
	"card-payments/internal/model"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient() *chargeback.Client {
	inv := invoker.NewHTTPInvoker("http://functions.local", time.Second, slog.Default())
	return chargeback.NewClient(inv, config.Default().Services.Functions, slog.Default())
}

func TestClient_Void(t *testing.T) {
	defer gock.Off()

	gock.New("http://functions.local").
		Post("/functions/voidTransaction").
		MatchType("json").
		Reply(200).
		JSON(map[string]any{"body": map[string]any{"ticketNumber": "V-1", "responseCode": "000"}})

	resp, err := newClient().Void(context.Background(), chargeback.VoidRequest{
		Transaction:    model.Transaction{TicketNumber: "T-1"},
		AmountToRefund: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, "V-1", resp.TicketNumber)
	assert.True(t, gock.IsDone())
}

func TestClient_Chargeback(t *testing.T) {
	defer gock.Off()

	gock.New("http://functions.local").
		Post("/functions/chargeback").
		Reply(200).
		JSON(map[string]any{"body": map[string]any{"status": "OK"}})
	gock.New("http://functions.local").
		Post("/functions/chargeback").
		Reply(500)

	client := newClient()
	assert.NoError(t, client.Chargeback(context.Background(), model.Transaction{TicketNumber: "T-1"}, "late approval"))
	assert.Error(t, client.Chargeback(context.Background(), model.Transaction{TicketNumber: "T-2"}, "late approval"))
}
