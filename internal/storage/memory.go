// Package storage provides the persistence implementations consumed by the
// cart aggregate: Redis for shared deployments, Postgres for durable ones,
// and an in-memory store for embedded/library use and tests.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/masyukai/cart/internal/cart"
	"github.com/masyukai/cart/internal/condition"
)

// Memory is an in-process cart.Storage. Snapshots are held as encoded JSON so
// a stored cart never aliases live aggregate state.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: map[string][]byte{}}
}

func memKey(identifier, instance, kind string) string {
	return fmt.Sprintf("%s:%s:%s", identifier, instance, kind)
}

func (m *Memory) get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.data[key]
	return raw, ok
}

func (m *Memory) put(key string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
}

// GetItems implements cart.Storage.
func (m *Memory) GetItems(_ context.Context, identifier, instance string) (*cart.ItemCollection, error) {
	raw, ok := m.get(memKey(identifier, instance, "items"))
	if !ok {
		return nil, nil
	}
	items := cart.NewItemCollection()
	if err := json.Unmarshal(raw, items); err != nil {
		return nil, fmt.Errorf("storage: decode items: %w", err)
	}
	return items, nil
}

// PutItems implements cart.Storage.
func (m *Memory) PutItems(_ context.Context, identifier, instance string, items *cart.ItemCollection) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("storage: encode items: %w", err)
	}
	m.put(memKey(identifier, instance, "items"), raw)
	return nil
}

// GetConditions implements cart.Storage.
func (m *Memory) GetConditions(_ context.Context, identifier, instance string) (*condition.Collection, error) {
	raw, ok := m.get(memKey(identifier, instance, "conditions"))
	if !ok {
		return nil, nil
	}
	conds := condition.NewCollection()
	if err := json.Unmarshal(raw, conds); err != nil {
		return nil, fmt.Errorf("storage: decode conditions: %w", err)
	}
	return conds, nil
}

// PutConditions implements cart.Storage.
func (m *Memory) PutConditions(_ context.Context, identifier, instance string, conds *condition.Collection) error {
	raw, err := json.Marshal(conds)
	if err != nil {
		return fmt.Errorf("storage: encode conditions: %w", err)
	}
	m.put(memKey(identifier, instance, "conditions"), raw)
	return nil
}

// GetMetadata implements cart.Storage.
func (m *Memory) GetMetadata(_ context.Context, identifier, instance, key string) ([]byte, bool, error) {
	raw, ok := m.get(memKey(identifier, instance, "meta:"+key))
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

// PutMetadata implements cart.Storage.
func (m *Memory) PutMetadata(_ context.Context, identifier, instance, key string, value []byte) error {
	m.put(memKey(identifier, instance, "meta:"+key), append([]byte(nil), value...))
	return nil
}
