package kv

import (
	"errors"
	"fmt"
	"time"
)

// Backend names a storage implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// LogFunc receives backend selection messages.
type LogFunc func(msg string, keysAndValues ...any)

// Config selects and configures a backend.
type Config struct {
	Backend Backend

	// RedisURL is required for the redis backend, e.g. redis://:pass@localhost:6379/1.
	RedisURL string

	// JanitorInterval controls expired-key cleanup in the memory backend. Zero
	// selects 30s.
	JanitorInterval time.Duration

	// FallbackToMemory makes NewStoreFromConfig return a memory store when
	// Redis is unreachable at startup.
	FallbackToMemory bool

	// StartupProbeTimeout bounds the initial Redis ping. Zero selects 1s.
	StartupProbeTimeout time.Duration

	Logger LogFunc
}

// StoreFactory builds a Store from a Config.
type StoreFactory func(cfg Config) (Store, error)

var factories = make(map[Backend]StoreFactory)

// RegisterBackend makes a backend available to NewStoreFromConfig.
func RegisterBackend(backend Backend, factory StoreFactory) {
	factories[backend] = factory
}

// NewStoreFromConfig builds the configured backend.
func NewStoreFromConfig(cfg Config) (Store, error) {
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 30 * time.Second
	}
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = time.Second
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}

	factory, ok := factories[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("kv backend %q not registered", cfg.Backend)
	}

	store, err := factory(cfg)
	if err == nil {
		return store, nil
	}

	if cfg.Backend != BackendRedis || !cfg.FallbackToMemory {
		return nil, err
	}
	memFactory, ok := factories[BackendMemory]
	if !ok {
		return nil, errors.Join(err, fmt.Errorf("memory backend not registered"))
	}
	if cfg.Logger != nil {
		cfg.Logger("redis unavailable, using memory store", "error", err)
	}
	return memFactory(cfg)
}
