package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory keeps items as JSON documents in process. It follows the same
// comparison rules as the postgres repository: values are equal when their
// JSON encodings are equal.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]map[string]any
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]map[string]any)}
}

var _ Storage = (*Memory)(nil)

func (m *Memory) GetItem(_ context.Context, table, key string, out any) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.tables[table][key]
	if !ok {
		return false, nil
	}
	return true, convert(doc, out)
}

func (m *Memory) Query(_ context.Context, table, field string, value any, filter map[string]any, out any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]map[string]any, 0)
	for _, doc := range m.tables[table] {
		if !jsonEqual(doc[field], value) {
			continue
		}
		if !matchesAll(doc, filter) {
			continue
		}
		matches = append(matches, doc)
	}
	return convert(matches, out)
}

func (m *Memory) Put(_ context.Context, table, key string, item any) error {
	doc, err := toDoc(item)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tables[table] == nil {
		m.tables[table] = make(map[string]map[string]any)
	}
	m.tables[table][key] = doc
	return nil
}

func (m *Memory) UpdateValues(_ context.Context, table, key string, patch map[string]any, cond *Condition) error {
	normalized, err := toDoc(patch)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.tables[table][key]
	if !ok {
		return ErrNotFound
	}
	if cond != nil {
		current, present := doc[cond.Field]
		if cond.Value == nil && present && current != nil {
			return ErrConditionalCheckFailed
		}
		if cond.Value != nil && !jsonEqual(current, cond.Value) {
			return ErrConditionalCheckFailed
		}
	}
	for k, v := range normalized {
		doc[k] = v
	}
	return nil
}

func (m *Memory) UpdateTokenValue(_ context.Context, tokenID string, patch map[string]any) (bool, error) {
	normalized, err := toDoc(patch)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.tables[TableTokens][tokenID]
	if !ok {
		return false, nil
	}
	if used, _ := doc["alreadyUsed"].(bool); used {
		return true, ErrConditionalCheckFailed
	}
	for k, v := range normalized {
		doc[k] = v
	}
	return true, nil
}

func matchesAll(doc map[string]any, filter map[string]any) bool {
	for k, v := range filter {
		if !jsonEqual(doc[k], v) {
			return false
		}
	}
	return true
}

func toDoc(item any) (map[string]any, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding item: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("item is not an object: %w", err)
	}
	return doc, nil
}

func convert(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func jsonEqual(a, b any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
