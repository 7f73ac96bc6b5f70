package crosschain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/roles"
	"go.uber.org/zap"
)

// Publisher hands an envelope to the relay transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Observer records message outcomes, typically into metrics.
type Observer interface {
	RecordBridgeMessage(ctx context.Context, direction, outcome string)
}

type nopObserver struct{}

func (nopObserver) RecordBridgeMessage(context.Context, string, string) {}

type MessagerOption func(*Messager)

func WithObserver(o Observer) MessagerOption {
	return func(m *Messager) { m.observer = o }
}

func WithMessagerLogger(logger *zap.SugaredLogger) MessagerOption {
	return func(m *Messager) { m.logger = logger }
}

func WithMessagerSink(sink events.Sink) MessagerOption {
	return func(m *Messager) { m.sink = sink }
}

func WithMessagerClock(clock func() time.Time) MessagerOption {
	return func(m *Messager) { m.clock = clock }
}

// WithRateSource stamps every outgoing envelope with the amount per wrapped
// unit reported by source. Only the main domain has one.
func WithRateSource(source func() (*uint256.Int, error)) MessagerOption {
	return func(m *Messager) { m.rateSource = source }
}

// Messager is the trusted identity an Endpoint accepts Send and Receive
// from. It keeps the per-route peer allow-list and turns payloads into
// envelopes for the relay.
type Messager struct {
	mu sync.RWMutex

	self     common.Address
	selector ChainSelector
	endpoint *Endpoint
	out      Publisher
	peers    map[ChainSelector]map[common.Address]bool

	observer   Observer
	rateSource func() (*uint256.Int, error)
	sink       events.Sink
	clock      func() time.Time
	logger     *zap.SugaredLogger
}

// NewMessager returns the messager for the domain identified by selector.
// self must hold the endpoint's messager role.
func NewMessager(self common.Address, selector ChainSelector, endpoint *Endpoint, out Publisher, opts ...MessagerOption) *Messager {
	m := &Messager{
		self:     self,
		selector: selector,
		endpoint: endpoint,
		out:      out,
		peers:    make(map[ChainSelector]map[common.Address]bool),
		observer: nopObserver{},
		sink:     events.Nop,
		clock:    time.Now,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Messager) Address() common.Address { return m.self }
func (m *Messager) Selector() ChainSelector { return m.selector }
func (m *Messager) Endpoint() *Endpoint     { return m.endpoint }

// SetAllowedPeer enables or disables the route from peer on selector. Owner
// of the endpoint only.
func (m *Messager) SetAllowedPeer(caller common.Address, selector ChainSelector, peer common.Address, enabled bool) error {
	if err := m.endpoint.Roles().Require(roles.Owner, caller); err != nil {
		return err
	}
	m.mu.Lock()
	if enabled {
		if m.peers[selector] == nil {
			m.peers[selector] = make(map[common.Address]bool)
		}
		m.peers[selector][peer] = true
	} else {
		delete(m.peers[selector], peer)
	}
	m.mu.Unlock()
	m.sink.Publish(PeerSet{Selector: selector, Peer: peer, Enabled: enabled})
	return nil
}

func (m *Messager) IsAllowedPeer(selector ChainSelector, peer common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peers[selector][peer]
}

// TransferToChain moves amount from from on this domain to to on the peer
// domain. The payload remains derivable through GetCcSendData if the
// publish fails after custody was taken.
func (m *Messager) TransferToChain(ctx context.Context, dest ChainSelector, peer, from, to common.Address, amount *uint256.Int) (Envelope, error) {
	if amount.IsZero() {
		return Envelope{}, ErrZeroAmount
	}
	if !m.IsAllowedPeer(dest, peer) {
		m.observer.RecordBridgeMessage(ctx, "out", "unknown_peer")
		return Envelope{}, ErrUnknownPeer
	}
	var rate *Rate
	if m.rateSource != nil {
		per, err := m.rateSource()
		if err != nil {
			return Envelope{}, fmt.Errorf("read rate: %w", err)
		}
		rate = &Rate{AmountPerUnit: per, UpdatedAt: uint64(m.clock().Unix())}
	}
	payload, err := m.endpoint.Send(m.self, from, to, amount)
	if err != nil {
		m.observer.RecordBridgeMessage(ctx, "out", "rejected")
		return Envelope{}, err
	}

	env := Envelope{
		ID:             uuid.NewString(),
		SourceSelector: m.selector,
		DestSelector:   dest,
		Sender:         m.self,
		Receiver:       peer,
		Payload:        payload,
		Rate:           rate,
		CreatedAt:      m.clock().UTC(),
	}
	if err := m.out.Publish(ctx, env); err != nil {
		m.observer.RecordBridgeMessage(ctx, "out", "publish_failed")
		m.logger.Warnw("Envelope publish failed after custody",
			"envelopeId", env.ID,
			"dest", dest,
			"from", from.Hex(),
			"to", to.Hex(),
			"amount", amount.Dec(),
			"error", err,
		)
		return env, fmt.Errorf("publish envelope %s: %w", env.ID, err)
	}

	m.observer.RecordBridgeMessage(ctx, "out", "sent")
	m.logger.Infow("Envelope published",
		"envelopeId", env.ID,
		"source", m.selector,
		"dest", dest,
		"peer", peer.Hex(),
	)
	return env, nil
}

// Deliver applies an envelope from the relay. Envelopes from a route that
// is not allow-listed are rejected before the endpoint sees them.
func (m *Messager) Deliver(ctx context.Context, env Envelope) (Receipt, error) {
	if env.DestSelector != m.selector {
		m.observer.RecordBridgeMessage(ctx, "in", "wrong_destination")
		return Receipt{}, ErrWrongDestination
	}
	if !m.IsAllowedPeer(env.SourceSelector, env.Sender) {
		m.observer.RecordBridgeMessage(ctx, "in", "unknown_peer")
		m.logger.Warnw("Envelope from unknown peer rejected",
			"envelopeId", env.ID,
			"source", env.SourceSelector,
			"sender", env.Sender.Hex(),
		)
		return Receipt{}, ErrUnknownPeer
	}

	receipt, err := m.endpoint.ReceiveWithRate(m.self, env.Payload, env.Rate)
	if err != nil {
		m.observer.RecordBridgeMessage(ctx, "in", "failed")
		return Receipt{}, err
	}
	receipt.EnvelopeID = env.ID

	outcome := "applied"
	if receipt.Redirected {
		outcome = "redirected"
	}
	m.observer.RecordBridgeMessage(ctx, "in", outcome)
	return receipt, nil
}
