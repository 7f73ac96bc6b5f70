// Package store persists domain snapshots as JSON documents in a kv.Store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/pkg/kv"
)

var ErrMiss = errors.New("snapshot not found")

const keyPrefix = "stbt:snapshot:"

// Snapshotter is anything whose state can be captured and replaced as a
// JSON-encodable value.
type Snapshotter interface {
	SnapshotKey() string
	CaptureJSON() ([]byte, error)
	RestoreJSON(data []byte) error
}

type Store struct {
	kv     kv.Store
	logger *zap.SugaredLogger
}

func New(kvStore kv.Store, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{kv: kvStore, logger: logger}
}

func (s *Store) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := s.kv.Get(ctx, keyPrefix+key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrMiss
		}
		return fmt.Errorf("snapshot get error: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("snapshot unmarshal error: %w", err)
	}
	return nil
}

func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("snapshot marshal error: %w", err)
	}
	if err := s.kv.Set(ctx, keyPrefix+key, data); err != nil {
		s.logger.Errorw("Snapshot set error", "key", key, "error", err)
		return fmt.Errorf("snapshot set error: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.kv.Del(ctx, keyPrefix+key); err != nil {
		return fmt.Errorf("snapshot delete error: %w", err)
	}
	return nil
}

// Save writes the current state of snap.
func (s *Store) Save(ctx context.Context, snap Snapshotter) error {
	data, err := snap.CaptureJSON()
	if err != nil {
		return fmt.Errorf("capture %s: %w", snap.SnapshotKey(), err)
	}
	if err := s.kv.Set(ctx, keyPrefix+snap.SnapshotKey(), data); err != nil {
		return fmt.Errorf("save %s: %w", snap.SnapshotKey(), err)
	}
	return nil
}

// Load restores snap from the stored copy. It reports false when nothing
// was stored yet.
func (s *Store) Load(ctx context.Context, snap Snapshotter) (bool, error) {
	data, err := s.kv.Get(ctx, keyPrefix+snap.SnapshotKey())
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", snap.SnapshotKey(), err)
	}
	if err := snap.RestoreJSON(data); err != nil {
		return false, fmt.Errorf("restore %s: %w", snap.SnapshotKey(), err)
	}
	return true, nil
}

// Run saves every snapshotter each interval and once more when ctx ends.
func (s *Store) Run(ctx context.Context, interval time.Duration, snaps ...Snapshotter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	saveAll := func(ctx context.Context) {
		for _, snap := range snaps {
			if err := s.Save(ctx, snap); err != nil {
				s.logger.Warnw("Snapshot save failed", "key", snap.SnapshotKey(), "error", err)
			}
		}
	}

	for {
		select {
		case <-ticker.C:
			saveAll(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			saveAll(flushCtx)
			cancel()
			s.logger.Infow("Snapshotter stopped")
			return
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}
