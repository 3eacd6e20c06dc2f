package kv

import (
	"context"
	"fmt"
	"os"

	"github.com/peterbourgon/diskv/v3"
)

// Disk is a Store that keeps one file per key using diskv.
type Disk struct {
	d *diskv.Diskv
}

// OpenDisk creates a diskv-backed store rooted at dir.
func OpenDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return &Disk{d: diskv.New(diskv.Options{
		BasePath:     dir,
		CacheSizeMax: 64 * 1024,
	})}, nil
}

// Get returns the value stored under key.
func (s *Disk) Get(_ context.Context, key string) ([]byte, bool, error) {
	if !s.d.Has(key) {
		return nil, false, nil
	}
	val, err := s.d.Read(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return val, true, nil
}

// Put stores value under key, replacing any previous value.
func (s *Disk) Put(_ context.Context, key string, value []byte) error {
	if err := s.d.Write(key, value); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Disk) Delete(_ context.Context, key string) error {
	if !s.d.Has(key) {
		return nil
	}
	if err := s.d.Erase(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; diskv holds no open handles between calls.
func (s *Disk) Close() error { return nil }
