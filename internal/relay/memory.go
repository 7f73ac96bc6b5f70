package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
)

var ErrClosed = errors.New("relay: transport closed")

type queued struct {
	env      crosschain.Envelope
	attempts int
}

type MemoryOption func(*MemoryTransport)

func WithBuffer(size int) MemoryOption {
	return func(t *MemoryTransport) { t.buffer = size }
}

func WithRetry(maxAttempts int, delay time.Duration) MemoryOption {
	return func(t *MemoryTransport) {
		t.maxAttempts = maxAttempts
		t.retryDelay = delay
	}
}

func WithMemoryLogger(logger *zap.SugaredLogger) MemoryOption {
	return func(t *MemoryTransport) { t.logger = logger }
}

// MemoryTransport keeps one buffered queue per destination selector.
type MemoryTransport struct {
	mu     sync.Mutex
	queues map[crosschain.ChainSelector]chan queued
	dead   []crosschain.Envelope
	closed bool
	done   chan struct{}

	buffer      int
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.SugaredLogger
}

func NewMemoryTransport(opts ...MemoryOption) *MemoryTransport {
	t := &MemoryTransport{
		queues:      make(map[crosschain.ChainSelector]chan queued),
		done:        make(chan struct{}),
		buffer:      64,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  100 * time.Millisecond,
		logger:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *MemoryTransport) queue(selector crosschain.ChainSelector) (chan queued, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	q, ok := t.queues[selector]
	if !ok {
		q = make(chan queued, t.buffer)
		t.queues[selector] = q
	}
	return q, nil
}

func (t *MemoryTransport) Publish(ctx context.Context, env crosschain.Envelope) error {
	q, err := t.queue(env.DestSelector)
	if err != nil {
		return err
	}
	select {
	case q <- queued{env: env}:
		return nil
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MemoryTransport) Subscribe(ctx context.Context, selector crosschain.ChainSelector, handler Handler) error {
	q, err := t.queue(selector)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return ErrClosed
		case item := <-q:
			err := handler(ctx, item.env)
			if err == nil {
				continue
			}
			item.attempts++
			if item.attempts >= t.maxAttempts {
				t.logger.Errorw("Envelope dropped after retries",
					"envelopeId", item.env.ID,
					"dest", selector,
					"attempts", item.attempts,
					"error", err,
				)
				t.mu.Lock()
				t.dead = append(t.dead, item.env)
				t.mu.Unlock()
				continue
			}
			t.logger.Warnw("Envelope delivery failed, retrying",
				"envelopeId", item.env.ID,
				"dest", selector,
				"attempt", item.attempts,
				"error", err,
			)
			go t.requeue(ctx, q, item)
		}
	}
}

func (t *MemoryTransport) requeue(ctx context.Context, q chan queued, item queued) {
	timer := time.NewTimer(t.retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	case <-t.done:
		return
	}
	select {
	case q <- item:
	case <-ctx.Done():
	case <-t.done:
	}
}

// DeadLetters returns envelopes that exhausted their attempts.
func (t *MemoryTransport) DeadLetters() []crosschain.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]crosschain.Envelope(nil), t.dead...)
}

// Pending reports how many envelopes wait for selector.
func (t *MemoryTransport) Pending(selector crosschain.ChainSelector) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queues[selector])
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}
