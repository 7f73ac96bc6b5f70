package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
)

const envelopeField = "envelope"

type RedisOption func(*RedisTransport)

func WithStreamPrefix(prefix string) RedisOption {
	return func(t *RedisTransport) { t.prefix = prefix }
}

func WithGroup(group string) RedisOption {
	return func(t *RedisTransport) { t.group = group }
}

func WithBlock(d time.Duration) RedisOption {
	return func(t *RedisTransport) { t.block = d }
}

// WithReclaim sets how long an unacknowledged entry stays with a consumer
// before another read claims it again.
func WithReclaim(minIdle time.Duration) RedisOption {
	return func(t *RedisTransport) { t.minIdle = minIdle }
}

func WithMaxAttempts(n int64) RedisOption {
	return func(t *RedisTransport) { t.maxAttempts = n }
}

func WithRedisLogger(logger *zap.SugaredLogger) RedisOption {
	return func(t *RedisTransport) { t.logger = logger }
}

// RedisTransport stores envelopes in one stream per destination selector and
// consumes them through a consumer group. Entries are acknowledged only
// after the handler succeeds.
type RedisTransport struct {
	client   *redis.Client
	consumer string

	prefix      string
	group       string
	block       time.Duration
	minIdle     time.Duration
	maxAttempts int64
	logger      *zap.SugaredLogger
}

func NewRedisTransport(client *redis.Client, consumer string, opts ...RedisOption) *RedisTransport {
	t := &RedisTransport{
		client:      client,
		consumer:    consumer,
		prefix:      "stbt:relay:",
		group:       "messagers",
		block:       2 * time.Second,
		minIdle:     30 * time.Second,
		maxAttempts: defaultMaxAttempts,
		logger:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RedisTransport) stream(selector crosschain.ChainSelector) string {
	return t.prefix + strconv.FormatUint(uint64(selector), 10)
}

func (t *RedisTransport) Publish(ctx context.Context, env crosschain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	err = t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stream(env.DestSelector),
		Values: map[string]any{envelopeField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd envelope %s: %w", env.ID, err)
	}
	return nil
}

func (t *RedisTransport) ensureGroup(ctx context.Context, stream string) error {
	err := t.client.XGroupCreateMkStream(ctx, stream, t.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, selector crosschain.ChainSelector, handler Handler) error {
	stream := t.stream(selector)
	if err := t.ensureGroup(ctx, stream); err != nil {
		return err
	}
	t.logger.Infow("Relay subscription started", "stream", stream, "group", t.group, "consumer", t.consumer)

	backoff := 100 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed, _, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    t.group,
			Consumer: t.consumer,
			MinIdle:  t.minIdle,
			Start:    "0-0",
			Count:    16,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warnw("Relay reclaim failed", "stream", stream, "error", err)
		}
		for _, msg := range claimed {
			t.process(ctx, stream, msg, handler)
		}

		res, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    t.group,
			Consumer: t.consumer,
			Streams:  []string{stream, ">"},
			Count:    16,
			Block:    t.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warnw("Relay read failed", "stream", stream, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 100 * time.Millisecond

		for _, s := range res {
			for _, msg := range s.Messages {
				t.process(ctx, stream, msg, handler)
			}
		}
	}
}

func (t *RedisTransport) process(ctx context.Context, stream string, msg redis.XMessage, handler Handler) {
	env, err := decodeEntry(msg)
	if err != nil {
		t.logger.Errorw("Dropping malformed relay entry", "stream", stream, "entry", msg.ID, "error", err)
		t.ack(ctx, stream, msg.ID)
		return
	}

	if err := handler(ctx, env); err != nil {
		attempts := t.deliveries(ctx, stream, msg.ID)
		if attempts >= t.maxAttempts {
			t.logger.Errorw("Envelope dropped after retries",
				"envelopeId", env.ID,
				"entry", msg.ID,
				"attempts", attempts,
				"error", err,
			)
			t.ack(ctx, stream, msg.ID)
			return
		}
		t.logger.Warnw("Envelope delivery failed, left pending",
			"envelopeId", env.ID,
			"entry", msg.ID,
			"attempts", attempts,
			"error", err,
		)
		return
	}
	t.ack(ctx, stream, msg.ID)
}

func (t *RedisTransport) deliveries(ctx context.Context, stream, id string) int64 {
	pending, err := t.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  t.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 1
	}
	return pending[0].RetryCount
}

func (t *RedisTransport) ack(ctx context.Context, stream, id string) {
	if err := t.client.XAck(ctx, stream, t.group, id).Err(); err != nil {
		t.logger.Warnw("Relay ack failed", "stream", stream, "entry", id, "error", err)
	}
}

func decodeEntry(msg redis.XMessage) (crosschain.Envelope, error) {
	var env crosschain.Envelope
	raw, ok := msg.Values[envelopeField].(string)
	if !ok {
		return env, fmt.Errorf("entry %s has no %q field", msg.ID, envelopeField)
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env, fmt.Errorf("decode entry %s: %w", msg.ID, err)
	}
	return env, nil
}

// Close is a no-op; the client is owned by the caller.
func (t *RedisTransport) Close() error { return nil }
