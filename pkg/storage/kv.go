// Package storage provides the key-value persistence layer for metrics,
// insights, and dispatch records. All implementations are last-writer-wins
// per key; no cross-key transactions are offered or needed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key has no value (or it expired).
var ErrNotFound = errors.New("storage: key not found")

// KV is a minimal key-value store. A zero ttl on Put means no expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// GetJSON fetches key and unmarshals it into out.
func GetJSON(ctx context.Context, kv KV, key string, out interface{}) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return nil
}

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, kv KV, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return kv.Put(ctx, key, raw, ttl)
}
