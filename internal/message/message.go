package message

import (
	"card-payments/internal/model"
	"github.com/google/uuid"
)

const EventTransactionCreated = "transaction.created"

// TransactionEvent carries one persisted attempt on the transactions topic.
type TransactionEvent struct {
	ID      uuid.UUID         `json:"id"`
	Event   string            `json:"event"`
	Payload model.Transaction `json:"payload"`
}

func NewTransactionEvent(tx model.Transaction) TransactionEvent {
	return TransactionEvent{ID: uuid.New(), Event: EventTransactionCreated, Payload: tx}
}

type Callback struct {
	ID            uuid.UUID `json:"id"`
	TransactionID string    `json:"transactionId"`
	MerchantID    string    `json:"merchantId"`
	Url           string    `json:"url"`
	Payload       string    `json:"payload"`
	Attempts      int       `json:"attempts"`
}

// Key keeps every attempt of one charge on the same partition.
func (e TransactionEvent) Key() string {
	return e.Payload.TransactionReference
}
