package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not present or has expired.
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable is returned when the backend cannot be reached.
var ErrBackendUnavailable = errors.New("backend unavailable")

// Store is the subset of Redis string semantics the ledger services rely on.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
