// Package queue is the durable fan-out the orchestrators publish records to.
package queue

import "context"

type Queue interface {
	// Enqueue publishes payload to queueName. Delivery is owned by the
	// implementation.
	Enqueue(ctx context.Context, queueName string, payload any) error
}
