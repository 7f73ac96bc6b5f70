// Package crosschain moves value between the main and the side ledger
// domains. Each domain runs one Endpoint holding custody on its own ledger
// and one Messager that talks to the peer domain through a relay transport.
package crosschain

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/roles"
	"go.uber.org/zap"
)

type Option func(*Endpoint)

func WithSink(sink events.Sink) Option {
	return func(e *Endpoint) { e.sink = sink }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Endpoint) { e.logger = logger }
}

// WithFallback routes redirected deliveries to account instead of the owner.
func WithFallback(account common.Address) Option {
	return func(e *Endpoint) { e.fallback = account }
}

func WithSendEnabled(enabled bool) Option {
	return func(e *Endpoint) { e.sendEnabled = enabled }
}

// Endpoint applies the cross-domain protocol on one domain. Every delivered
// message is applied in full: a recipient that cannot receive locally is
// replaced by the fallback account instead of failing the delivery.
type Endpoint struct {
	mu sync.Mutex

	self        common.Address
	roles       *roles.Table
	forbidden   *Forbidden
	custody     Custody
	fallback    common.Address
	sendEnabled bool
	rate        Rate

	sink   events.Sink
	logger *zap.SugaredLogger
}

// NewEndpoint wires an endpoint acting as self. table supplies the owner,
// controller and messager roles; forbidden may be shared with the local
// ledger's transfer guard.
func NewEndpoint(self common.Address, table *roles.Table, forbidden *Forbidden, custody Custody, opts ...Option) *Endpoint {
	e := &Endpoint{
		self:      self,
		roles:     table,
		forbidden: forbidden,
		custody:   custody,
		sink:      events.Nop,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Endpoint) Address() common.Address { return e.self }
func (e *Endpoint) Kind() Kind              { return e.custody.Kind() }
func (e *Endpoint) Roles() *roles.Table     { return e.roles }
func (e *Endpoint) Forbidden() *Forbidden   { return e.forbidden }

func (e *Endpoint) SendEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendEnabled
}

// Fallback returns the redirect account, the owner unless configured.
func (e *Endpoint) Fallback() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallbackLocked()
}

func (e *Endpoint) fallbackLocked() common.Address {
	if e.fallback != (common.Address{}) {
		return e.fallback
	}
	return e.roles.Holder(roles.Owner)
}

// GetCcSendData returns the payload Send produces for the same transfer.
func (e *Endpoint) GetCcSendData(from, to common.Address, amount *uint256.Int) ([]byte, error) {
	return EncodeMessage(from, to, amount)
}

// Send takes amount from from into custody and returns the payload for the
// peer domain. Nothing is taken when any check fails.
func (e *Endpoint) Send(caller, from, to common.Address, amount *uint256.Int) ([]byte, error) {
	if err := e.roles.Require(roles.Messager, caller); err != nil {
		return nil, err
	}
	if from == (common.Address{}) {
		return nil, ErrZeroSender
	}
	if to == (common.Address{}) {
		return nil, ErrZeroReceiver
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.sendEnabled {
		return nil, ErrSendDisabled
	}
	if e.forbidden.IsForbidden(from) {
		return nil, ErrSenderForbidden
	}
	if e.forbidden.IsForbidden(to) {
		return nil, ErrReceiverForbidden
	}
	if err := e.custody.Ready(); err != nil {
		return nil, err
	}
	payload, err := EncodeMessage(from, to, amount)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if err := e.custody.Pull(from, amount); err != nil {
		return nil, err
	}

	e.sink.Publish(Sent{From: from, To: to, Amount: amount.Clone()})
	e.logger.Infow("Cross-domain send",
		"kind", e.custody.Kind(),
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", amount.Dec(),
	)
	return payload, nil
}

// Rate returns the last main-domain rate delivered to this endpoint. Its
// AmountPerUnit is nil until one arrives.
func (e *Endpoint) Rate() Rate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Rate{AmountPerUnit: cloneOrNil(e.rate.AmountPerUnit), UpdatedAt: e.rate.UpdatedAt}
}

func cloneOrNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}

// Receive applies a delivered payload. Compliance never fails a delivery;
// only a malformed payload, a wrong caller or a custody fault does.
// Re-delivery of the same payload applies it again.
func (e *Endpoint) Receive(caller common.Address, payload []byte) (Receipt, error) {
	return e.ReceiveWithRate(caller, payload, nil)
}

// ReceiveWithRate is Receive that also records rate once the payload is
// applied. A rate older than the recorded one is ignored, so out-of-order
// deliveries never move it backwards.
func (e *Endpoint) ReceiveWithRate(caller common.Address, payload []byte, rate *Rate) (Receipt, error) {
	if err := e.roles.Require(roles.Messager, caller); err != nil {
		return Receipt{}, err
	}
	msg, err := DecodeMessage(payload)
	if err != nil {
		return Receipt{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// a zero recipient can only come from a payload built off-protocol
	noRecipient := msg.To == (common.Address{})
	recipient := msg.To
	redirected := noRecipient || e.forbidden.IsForbidden(msg.To) || e.custody.Redirect(msg.From, msg.To)
	if redirected {
		recipient = e.fallbackLocked()
	}
	if err := e.custody.Release(recipient, msg.Amount); err != nil {
		return Receipt{}, fmt.Errorf("release to %s: %w", recipient.Hex(), err)
	}
	if !noRecipient {
		if err := e.custody.Settled(msg.To); err != nil {
			return Receipt{}, fmt.Errorf("settle %s: %w", msg.To.Hex(), err)
		}
	}

	evts := []events.Event{Received{
		From:       msg.From,
		To:         msg.To,
		Recipient:  recipient,
		Amount:     msg.Amount.Clone(),
		Redirected: redirected,
	}}
	if rate != nil && rate.AmountPerUnit != nil && rate.UpdatedAt >= e.rate.UpdatedAt {
		e.rate = Rate{AmountPerUnit: rate.AmountPerUnit.Clone(), UpdatedAt: rate.UpdatedAt}
		evts = append(evts, RateUpdated{AmountPerUnit: rate.AmountPerUnit.Clone(), UpdatedAt: rate.UpdatedAt})
	}
	e.sink.Publish(evts...)
	if redirected {
		e.logger.Warnw("Cross-domain delivery redirected to fallback",
			"kind", e.custody.Kind(),
			"from", msg.From.Hex(),
			"to", msg.To.Hex(),
			"fallback", recipient.Hex(),
			"amount", msg.Amount.Dec(),
		)
	} else {
		e.logger.Infow("Cross-domain receive",
			"kind", e.custody.Kind(),
			"from", msg.From.Hex(),
			"to", msg.To.Hex(),
			"amount", msg.Amount.Dec(),
		)
	}

	return Receipt{
		From:       msg.From,
		To:         msg.To,
		Recipient:  recipient,
		Amount:     msg.Amount.Dec(),
		Redirected: redirected,
	}, nil
}

func (e *Endpoint) SetSendEnabled(caller common.Address, enabled bool) error {
	if err := e.roles.Require(roles.Owner, caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.sendEnabled = enabled
	e.mu.Unlock()
	e.sink.Publish(SendEnabledSet{Enabled: enabled})
	return nil
}

func (e *Endpoint) SetFallback(caller, account common.Address) error {
	if err := e.roles.Require(roles.Owner, caller); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return roles.ErrZeroAddress
	}
	e.mu.Lock()
	e.fallback = account
	e.mu.Unlock()
	return nil
}

func (e *Endpoint) SetForbidden(caller, account common.Address, forbidden bool) error {
	return e.forbidden.Set(caller, account, forbidden)
}

func (e *Endpoint) SetMessager(caller, messager common.Address) error {
	return e.assign(caller, roles.Messager, messager)
}

func (e *Endpoint) SetController(caller, controller common.Address) error {
	return e.assign(caller, roles.Controller, controller)
}

func (e *Endpoint) assign(caller common.Address, r roles.Role, who common.Address) error {
	changed, err := e.roles.Assign(caller, r, who)
	if err != nil {
		return err
	}
	e.sink.Publish(changed)
	return nil
}

// State is the persisted endpoint configuration. Roles and the forbidden
// list are captured by their owners.
type State struct {
	SendEnabled bool           `json:"sendEnabled"`
	Fallback    common.Address `json:"fallback"`
	Rate        *Rate          `json:"rate,omitempty"`
}

func (e *Endpoint) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := State{SendEnabled: e.sendEnabled, Fallback: e.fallback}
	if e.rate.AmountPerUnit != nil {
		s.Rate = &Rate{AmountPerUnit: e.rate.AmountPerUnit.Clone(), UpdatedAt: e.rate.UpdatedAt}
	}
	return s
}

func (e *Endpoint) Restore(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendEnabled = s.SendEnabled
	e.fallback = s.Fallback
	e.rate = Rate{}
	if s.Rate != nil {
		e.rate = Rate{AmountPerUnit: cloneOrNil(s.Rate.AmountPerUnit), UpdatedAt: s.Rate.UpdatedAt}
	}
}
