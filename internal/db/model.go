package db

import (
	"time"

	"github.com/google/uuid"
)

// CallbackMessageEntity is one merchant webhook delivery in the outbox.
type CallbackMessageEntity struct {
	ID               uuid.UUID
	TransactionID    string
	MerchantID       string
	Url              string
	Payload          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ScheduledAt      *time.Time
	PublishedAt      *time.Time
	DeliveredAt      *time.Time
	PublishAttempts  int
	DeliveryAttempts int
	Error            *string
}
