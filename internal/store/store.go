// Package store persists engine state as named blobs behind a small
// key-value interface. Two backends exist: SQLite (default) and bbolt.
// Values are opaque byte slices; large ones are transparently wrapped in
// an lz4 envelope on write and unwrapped on read.
package store

import (
	"encoding/json"
	"fmt"
)

// Store is a blob store keyed by string. Get returns (nil, nil) for a
// missing key. Implementations are safe for concurrent use.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Open creates the store backend selected by name. Supported backends
// are "sqlite" and "bolt".
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "sqlite":
		return OpenSQLite(path)
	case "bolt":
		return OpenBolt(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// SaveJSON marshals v and writes it under key.
func SaveJSON(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.Set(key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// LoadJSON reads key and unmarshals it into v. It reports whether the key
// was present. A corrupt value returns an error with v untouched; callers
// fall back to zero values.
func LoadJSON(s Store, key string, v any) (bool, error) {
	data, err := s.Get(key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
