// Package storage defines the key-value contract the orchestrators persist
// through, and an in-process implementation of it.
package storage

import (
	"context"
	"errors"
)

const (
	TableTokens       = "tokens"
	TableTransactions = "transactions"
	TableMerchants    = "merchants"
	TableHierarchy    = "hierarchy"
)

var (
	ErrNotFound               = errors.New("item not found")
	ErrConditionalCheckFailed = errors.New("conditional check failed")
)

// Condition guards an update: the stored attribute must equal Value. A nil
// Value requires the attribute to be absent.
type Condition struct {
	Field string
	Value any
}

type Storage interface {
	// GetItem decodes the item into out and reports whether it exists.
	GetItem(ctx context.Context, table, key string, out any) (bool, error)
	// Query decodes into out (a pointer to a slice) every item whose field
	// equals value and that matches all filter attributes.
	Query(ctx context.Context, table, field string, value any, filter map[string]any, out any) error
	Put(ctx context.Context, table, key string, item any) error
	UpdateValues(ctx context.Context, table, key string, patch map[string]any, cond *Condition) error
	// UpdateTokenValue patches a token that has not been consumed yet. It
	// reports false when the token does not exist and fails with
	// ErrConditionalCheckFailed when it was already consumed.
	UpdateTokenValue(ctx context.Context, tokenID string, patch map[string]any) (bool, error)
}
