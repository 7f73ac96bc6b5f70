package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
	"github.com/rebasefi/stbt-ledger/pkg/kv"
)

// Deliverer is the receiving side of a route, normally a *crosschain.Messager.
type Deliverer interface {
	Selector() crosschain.ChainSelector
	Deliver(ctx context.Context, env crosschain.Envelope) (crosschain.Receipt, error)
}

type WorkerOption func(*Worker)

// WithDedup skips envelopes whose ID was already applied. Off by default:
// the bridge protocol itself does not deduplicate.
func WithDedup(store kv.Store, ttl time.Duration) WorkerOption {
	return func(w *Worker) {
		w.dedup = store
		w.dedupTTL = ttl
	}
}

func WithReceiptHook(fn func(crosschain.Receipt)) WorkerOption {
	return func(w *Worker) { w.onReceipt = fn }
}

func WithWorkerLogger(logger *zap.SugaredLogger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

// Worker feeds envelopes from a transport into one domain's messager.
type Worker struct {
	transport Transport
	target    Deliverer

	dedup     kv.Store
	dedupTTL  time.Duration
	onReceipt func(crosschain.Receipt)
	logger    *zap.SugaredLogger
}

func NewWorker(transport Transport, target Deliverer, opts ...WorkerOption) *Worker {
	w := &Worker{
		transport: transport,
		target:    target,
		onReceipt: func(crosschain.Receipt) {},
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infow("Relay worker starting", "selector", w.target.Selector())
	defer w.logger.Infow("Relay worker stopped", "selector", w.target.Selector())

	err := w.transport.Subscribe(ctx, w.target.Selector(), w.Handle)
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func dedupKey(id string) string {
	return "stbt:relay:seen:" + id
}

// Handle delivers a single envelope.
func (w *Worker) Handle(ctx context.Context, env crosschain.Envelope) error {
	if w.dedup != nil && env.ID != "" {
		fresh, err := w.dedup.SetNX(ctx, dedupKey(env.ID), []byte("1"), w.dedupTTL)
		if err != nil {
			return fmt.Errorf("dedup envelope %s: %w", env.ID, err)
		}
		if !fresh {
			w.logger.Infow("Duplicate envelope skipped", "envelopeId", env.ID)
			return nil
		}
	}

	receipt, err := w.target.Deliver(ctx, env)
	if err != nil {
		if w.dedup != nil && env.ID != "" {
			if _, delErr := w.dedup.Del(ctx, dedupKey(env.ID)); delErr != nil {
				w.logger.Warnw("Dedup marker not cleared", "envelopeId", env.ID, "error", delErr)
			}
		}
		return fmt.Errorf("deliver envelope %s: %w", env.ID, err)
	}

	w.logger.Infow("Envelope delivered",
		"envelopeId", env.ID,
		"recipient", receipt.Recipient.Hex(),
		"amount", receipt.Amount,
		"redirected", receipt.Redirected,
	)
	w.onReceipt(receipt)
	return nil
}
