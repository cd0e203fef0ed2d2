package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"card-payments/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// ItemRepository implements storage.Storage on a single JSONB table keyed by
// (tbl, key). Attribute comparisons use jsonb equality.
type ItemRepository struct {
	pool *pgxpool.Pool
}

func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

var _ storage.Storage = (*ItemRepository)(nil)

func (r *ItemRepository) GetItem(ctx context.Context, table, key string, out any) (bool, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT doc FROM items WHERE tbl = $1 AND key = $2`, table, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %s/%s", table, key)
	}
	return true, json.Unmarshal(doc, out)
}

func (r *ItemRepository) Query(ctx context.Context, table, field string, value any, filter map[string]any, out any) error {
	query, args, err := buildQuery(table, field, value, filter)
	if err != nil {
		return err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "query %s by %s", table, field)
	}
	defer rows.Close()

	docs := make([]json.RawMessage, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return errors.Wrap(err, "scanning item")
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "reading items")
	}

	data, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func buildQuery(table, field string, value any, filter map[string]any) (string, []any, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT doc FROM items WHERE tbl = $1 AND doc -> $2 = $3::jsonb`)
	args := []any{table, field, string(encoded)}

	for k, v := range filter {
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", nil, err
		}
		args = append(args, k, string(encoded))
		fmt.Fprintf(&sb, ` AND doc -> $%d = $%d::jsonb`, len(args)-1, len(args))
	}
	sb.WriteString(` ORDER BY created_at`)

	return sb.String(), args, nil
}

func (r *ItemRepository) Put(ctx context.Context, table, key string, item any) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return err
	}

	query := `INSERT INTO items (tbl, key, doc) VALUES ($1, $2, $3::jsonb)
	          ON CONFLICT (tbl, key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`
	if _, err := r.pool.Exec(ctx, query, table, key, string(doc)); err != nil {
		return errors.Wrapf(err, "put %s/%s", table, key)
	}
	return nil
}

func (r *ItemRepository) UpdateValues(ctx context.Context, table, key string, patch map[string]any, cond *storage.Condition) error {
	doc, err := json.Marshal(patch)
	if err != nil {
		return err
	}

	query := `UPDATE items SET doc = doc || $3::jsonb, updated_at = now() WHERE tbl = $1 AND key = $2`
	args := []any{table, key, string(doc)}

	if cond != nil {
		if cond.Value == nil {
			query += ` AND (doc -> $4 IS NULL OR doc -> $4 = 'null'::jsonb)`
			args = append(args, cond.Field)
		} else {
			expected, err := json.Marshal(cond.Value)
			if err != nil {
				return err
			}
			query += ` AND doc -> $4 = $5::jsonb`
			args = append(args, cond.Field, string(expected))
		}
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "update %s/%s", table, key)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	exists, err := r.exists(ctx, table, key)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConditionalCheckFailed
}

func (r *ItemRepository) UpdateTokenValue(ctx context.Context, tokenID string, patch map[string]any) (bool, error) {
	doc, err := json.Marshal(patch)
	if err != nil {
		return false, err
	}

	query := `UPDATE items SET doc = doc || $3::jsonb, updated_at = now()
	          WHERE tbl = $1 AND key = $2 AND COALESCE((doc ->> 'alreadyUsed')::boolean, false) = false`
	tag, err := r.pool.Exec(ctx, query, storage.TableTokens, tokenID, string(doc))
	if err != nil {
		return false, errors.Wrapf(err, "update token %s", tokenID)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	exists, err := r.exists(ctx, storage.TableTokens, tokenID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	return true, storage.ErrConditionalCheckFailed
}

func (r *ItemRepository) exists(ctx context.Context, table, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE tbl = $1 AND key = $2)`, table, key).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking item")
	}
	return exists, nil
}
