package timer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/majorcontext/tabclose/internal/kv"
)

// RecordKey is the well-known key of the persisted record.
const RecordKey = "timerData"

// KVStore keeps the Record as JSON in a kv.Store.
type KVStore struct {
	kv kv.Store
}

// NewKVStore wraps s.
func NewKVStore(s kv.Store) *KVStore {
	return &KVStore{kv: s}
}

// Load returns the record, or nil when none is stored.
func (s *KVStore) Load(ctx context.Context) (*Record, error) {
	data, ok, err := s.kv.Get(ctx, RecordKey)
	if err != nil || !ok {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding timer record: %w", err)
	}
	return &rec, nil
}

// Save overwrites the stored record.
func (s *KVStore) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, RecordKey, data)
}

// Delete removes the stored record, if any.
func (s *KVStore) Delete(ctx context.Context) error {
	return s.kv.Delete(ctx, RecordKey)
}
