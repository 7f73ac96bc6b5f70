package redis

import (
	"fmt"

	"github.com/rebasefi/stbt-ledger/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendRedis, func(cfg kv.Config) (kv.Store, error) {
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
		}
		return New(cfg.RedisURL, cfg.StartupProbeTimeout)
	})
}
