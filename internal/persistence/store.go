// Package persistence stores the portal's registry identifiers between runs.
package persistence

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Persisted keys.
const (
	KeyAppID   = "aarna.appId"
	KeyAssetID = "aarna.assetId"
)

// Store is a string key-value store. Get reports ok=false for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// GetUint reads key as an unsigned integer. Missing, empty and zero values
// all yield ok=false.
func GetUint(ctx context.Context, s Store, key string) (uint64, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok || raw == "" {
		return 0, false, err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("stored %s is not a number: %w", key, err)
	}
	return v, v != 0, nil
}

// SetUint stores v under key. Zero is stored as "" to mark the key cleared.
func SetUint(ctx context.Context, s Store, key string, v uint64) error {
	if v == 0 {
		return s.Set(ctx, key, "")
	}
	return s.Set(ctx, key, strconv.FormatUint(v, 10))
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
