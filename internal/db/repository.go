package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type CallbackRepository struct {
	pool *pgxpool.Pool
}

func NewCallbackRepository(pool *pgxpool.Pool) *CallbackRepository {
	return &CallbackRepository{pool: pool}
}

const callbackColumns = `id, transaction_id, merchant_id, url, payload, created_at, updated_at, scheduled_at,
	published_at, delivered_at, publish_attempts, delivery_attempts, error`

func (r *CallbackRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *CallbackRepository) Create(ctx context.Context, entity *CallbackMessageEntity) (*CallbackMessageEntity, error) {
	query := `INSERT INTO callback_message (id, transaction_id, merchant_id, url, payload, scheduled_at, delivery_attempts)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, entity.ID, entity.TransactionID, entity.MerchantID, entity.Url, entity.Payload,
		entity.ScheduledAt, entity.DeliveryAttempts).Scan(&entity.ID, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "inserting callback message")
	}
	return entity, nil
}

func (r *CallbackRepository) SelectByID(ctx context.Context, id uuid.UUID) (*CallbackMessageEntity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+callbackColumns+` FROM callback_message WHERE id = $1`, id)
	return scanCallback(row)
}

func (r *CallbackRepository) SelectForUpdateByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*CallbackMessageEntity, error) {
	row := tx.QueryRow(ctx, `SELECT `+callbackColumns+` FROM callback_message WHERE id = $1 FOR UPDATE`, id)
	return scanCallback(row)
}

// GetUnprocessedCallbacks locks up to limit due callbacks, skipping rows
// another producer instance already holds.
func (r *CallbackRepository) GetUnprocessedCallbacks(ctx context.Context, tx pgx.Tx, limit int) ([]*CallbackMessageEntity, error) {
	query := `SELECT ` + callbackColumns + ` FROM callback_message
	          WHERE scheduled_at IS NOT NULL AND scheduled_at <= now()
	          ORDER BY scheduled_at
	          LIMIT $1 FOR UPDATE SKIP LOCKED`
	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "selecting unprocessed callbacks")
	}
	defer rows.Close()

	var callbacks []*CallbackMessageEntity
	for rows.Next() {
		entity, err := scanCallback(rows)
		if err != nil {
			return nil, err
		}
		callbacks = append(callbacks, entity)
	}
	return callbacks, rows.Err()
}

func (r *CallbackRepository) Update(ctx context.Context, tx pgx.Tx, entity *CallbackMessageEntity) error {
	query := `UPDATE callback_message
	          SET scheduled_at = $2, published_at = $3, delivered_at = $4, publish_attempts = $5,
	              delivery_attempts = $6, error = $7, updated_at = now()
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, entity.ID, entity.ScheduledAt, entity.PublishedAt, entity.DeliveredAt,
		entity.PublishAttempts, entity.DeliveryAttempts, entity.Error)
	return errors.Wrap(err, "updating callback message")
}

func (r *CallbackRepository) UpdateScheduledAtAndAttemptsByID(ctx context.Context, tx pgx.Tx, id uuid.UUID, scheduledAt *time.Time, attempts int, errMsg string) error {
	query := `UPDATE callback_message SET scheduled_at = $2, delivery_attempts = $3, error = $4, updated_at = now() WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, scheduledAt, attempts, errMsg)
	return errors.Wrap(err, "rescheduling callback message")
}

func (r *CallbackRepository) UpdateAttemptsAndDeliveredAtByID(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, deliveredAt time.Time) error {
	query := `UPDATE callback_message SET delivery_attempts = $2, delivered_at = $3, error = NULL, updated_at = now() WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, attempts, deliveredAt)
	return errors.Wrap(err, "marking callback message delivered")
}

func scanCallback(row pgx.Row) (*CallbackMessageEntity, error) {
	var entity CallbackMessageEntity
	err := row.Scan(&entity.ID, &entity.TransactionID, &entity.MerchantID, &entity.Url, &entity.Payload,
		&entity.CreatedAt, &entity.UpdatedAt, &entity.ScheduledAt, &entity.PublishedAt, &entity.DeliveredAt,
		&entity.PublishAttempts, &entity.DeliveryAttempts, &entity.Error)
	if err != nil {
		return nil, errors.Wrap(err, "scanning callback message")
	}
	return &entity, nil
}
