// Package insight persists orchestrator output and dispatches high-risk
// alerts with cool-down deduplication.
package insight

import (
	"context"
	"fmt"
	"time"

	"opsinsight/pkg/inference"
	"opsinsight/pkg/storage"
)

// Store persists insights with their retention TTL.
type Store struct {
	kv  storage.KV
	now func() time.Time
}

// NewStore wraps a KV backend.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// NewStoreAt is NewStore with an injectable clock.
func NewStoreAt(kv storage.KV, now func() time.Time) *Store {
	return &Store{kv: kv, now: now}
}

// Save writes the insight. The backend TTL is derived from RetentionExpiry
// so stores with native expiry reclaim the record on their own.
func (s *Store) Save(ctx context.Context, ins *inference.Insight) error {
	ttl := ins.RetentionExpiry.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("insight: %s already past retention expiry", ins.ID)
	}
	if err := storage.PutJSON(ctx, s.kv, ins.StorageKey(), ins, ttl); err != nil {
		return fmt.Errorf("insight: save %s: %w", ins.ID, err)
	}
	return nil
}

// Get loads an insight by ID. Records past their retention expiry are
// reported as storage.ErrNotFound even when the backend has not reclaimed
// them yet.
func (s *Store) Get(ctx context.Context, id string) (*inference.Insight, error) {
	var ins inference.Insight
	if err := storage.GetJSON(ctx, s.kv, inference.InsightStorageKey(id), &ins); err != nil {
		return nil, err
	}
	if !ins.RetentionExpiry.IsZero() && !s.now().Before(ins.RetentionExpiry) {
		return nil, storage.ErrNotFound
	}
	return &ins, nil
}
