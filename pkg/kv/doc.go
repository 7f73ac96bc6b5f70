// Package kv is a small key-value abstraction used for snapshot persistence
// and relay deduplication. Backends register themselves on import:
//
//	import (
//		"github.com/rebasefi/stbt-ledger/pkg/kv"
//		_ "github.com/rebasefi/stbt-ledger/pkg/kv/memory"
//		_ "github.com/rebasefi/stbt-ledger/pkg/kv/redis"
//	)
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
//
// The in-memory backend supports TTLs with an optional background janitor.
// The Redis backend wraps go-redis/v9 and reports connectivity problems as
// ErrBackendUnavailable.
package kv
