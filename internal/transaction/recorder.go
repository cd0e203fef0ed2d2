package transaction

import (
	"context"
	"log/slog"

	"card-payments/internal/logcontext"
	"card-payments/internal/message"
	"card-payments/internal/model"
	"card-payments/internal/queue"
	"github.com/VictoriaMetrics/metrics"
)

var (
	recordedCounter     = metrics.GetOrCreateCounter(`transaction_records_total{result="enqueued"}`)
	recordFailedCounter = metrics.GetOrCreateCounter(`transaction_records_total{result="enqueue_failed"}`)
)

// Recorder publishes transactions to the transactions queue.
type Recorder struct {
	queue     queue.Queue
	queueName string
	logger    *slog.Logger
}

func NewRecorder(q queue.Queue, queueName string, logger *slog.Logger) *Recorder {
	return &Recorder{queue: q, queueName: queueName, logger: logger}
}

// Record enqueues tx once. Failures are logged and returned; callers that
// already answered the request only log them.
func (r *Recorder) Record(ctx context.Context, tx model.Transaction) error {
	ctx = logcontext.AppendCtx(ctx, slog.String("transactionId", tx.TransactionID))

	if err := r.queue.Enqueue(ctx, r.queueName, message.NewTransactionEvent(tx)); err != nil {
		r.logger.ErrorContext(ctx, "Error enqueuing transaction", "status", tx.TransactionStatus, "error", err)
		recordFailedCounter.Inc()
		return err
	}

	r.logger.InfoContext(ctx, "Transaction enqueued", "status", tx.TransactionStatus, "type", tx.TransactionType)
	recordedCounter.Inc()
	return nil
}
