// Package kv provides the small durable key/value store that backs the
// daemon's persisted timer record and wake-up registrations.
package kv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendDiskv  = "diskv"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Store is a durable key/value store. Get reports ok=false for a missing key.
// Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open opens the named backend rooted at dir.
// An empty backend selects SQLite.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendSQLite:
		return OpenSQLite(filepath.Join(dir, "state.db"))
	case BackendDiskv:
		return OpenDisk(filepath.Join(dir, "state"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
