// Package timelock is the delayed admin gateway. Admin calldata is scheduled
// with a per-selector minimum delay and can only be executed once that delay
// has passed. The gateway is itself the caller of the target, so the target's
// privileged roles are assigned to the gateway's address.
package timelock

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/fault"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

type Role string

const (
	Admin    Role = "admin"
	Proposer Role = "proposer"
	Executor Role = "executor"
)

// doneTimestamp marks an executed operation.
const doneTimestamp = 1

var (
	ErrNotAdmin          = fault.New(fault.AuthorizationDenied, "NOT_ADMIN")
	ErrNotProposer       = fault.New(fault.AuthorizationDenied, "NOT_PROPOSER")
	ErrNotExecutor       = fault.New(fault.AuthorizationDenied, "NOT_EXECUTOR")
	ErrUnknownSelector   = fault.New(fault.InvalidArgument, "UNKNOWN_SELECTOR")
	ErrUnknownTarget     = fault.New(fault.InvalidArgument, "UNKNOWN_TARGET")
	ErrUnsupported       = fault.New(fault.InvalidArgument, "UNSUPPORTED")
	ErrAlreadyScheduled  = fault.New(fault.ReplayOrUnknownOperation, "OPERATION_ALREADY_SCHEDULED")
	ErrNotReady          = fault.New(fault.RateOrBoundViolation, "OPERATION_NOT_READY")
	ErrMissingDependency = fault.New(fault.RateOrBoundViolation, "MISSING_DEPENDENCY")
	ErrNotPending        = fault.New(fault.ReplayOrUnknownOperation, "OPERATION_CANNOT_BE_CANCELLED")
)

// Target executes ABI calldata on behalf of caller.
type Target interface {
	Call(caller common.Address, data []byte) error
}

type CallScheduled struct {
	ID          common.Hash    `json:"id"`
	Index       uint64         `json:"index"`
	Target      common.Address `json:"target"`
	Data        string         `json:"data"`
	Predecessor common.Hash    `json:"predecessor"`
	Delay       uint64         `json:"delay"`
}

func (CallScheduled) EventName() string { return "CallScheduled" }

type CallExecuted struct {
	ID     common.Hash    `json:"id"`
	Index  uint64         `json:"index"`
	Target common.Address `json:"target"`
	Data   string         `json:"data"`
}

func (CallExecuted) EventName() string { return "CallExecuted" }

type Cancelled struct {
	ID common.Hash `json:"id"`
}

func (Cancelled) EventName() string { return "Cancelled" }

type Option func(*Controller)

func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithSink(sink events.Sink) Option {
	return func(c *Controller) { c.sink = sink }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Controller) { c.logger = logger }
}

type Controller struct {
	mu sync.Mutex

	self    common.Address
	members map[Role]map[common.Address]bool
	delays  map[[4]byte]time.Duration
	targets map[common.Address]Target

	timestamps map[common.Hash]uint64

	sink   events.Sink
	clock  func() time.Time
	logger *zap.SugaredLogger
}

// New returns a gateway acting as self. Granting the zero address the
// executor role opens execution to anyone.
func New(self, admin common.Address, proposers, executors []common.Address, delays map[[4]byte]time.Duration, opts ...Option) *Controller {
	c := &Controller{
		self: self,
		members: map[Role]map[common.Address]bool{
			Admin:    {admin: true},
			Proposer: {},
			Executor: {},
		},
		delays:     make(map[[4]byte]time.Duration, len(delays)),
		targets:    make(map[common.Address]Target),
		timestamps: make(map[common.Hash]uint64),
		sink:       events.Nop,
		clock:      time.Now,
		logger:     zap.NewNop().Sugar(),
	}
	for _, p := range proposers {
		c.members[Proposer][p] = true
	}
	for _, e := range executors {
		c.members[Executor][e] = true
	}
	for sel, d := range delays {
		c.delays[sel] = d
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Address() common.Address { return c.self }

// RegisterTarget makes target reachable under addr.
func (c *Controller) RegisterTarget(addr common.Address, target Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets[addr] = target
}

func (c *Controller) HasRole(r Role, who common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasRole(r, who)
}

func (c *Controller) hasRole(r Role, who common.Address) bool {
	m := c.members[r]
	if r == Executor && m[common.Address{}] {
		return true
	}
	return m[who]
}

func (c *Controller) GrantRole(caller common.Address, r Role, who common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRole(Admin, caller) {
		return ErrNotAdmin
	}
	if c.members[r] == nil {
		c.members[r] = make(map[common.Address]bool)
	}
	c.members[r][who] = true
	return nil
}

func (c *Controller) RevokeRole(caller common.Address, r Role, who common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRole(Admin, caller) {
		return ErrNotAdmin
	}
	delete(c.members[r], who)
	return nil
}

// Delay returns the minimum delay configured for selector.
func (c *Controller) Delay(selector [4]byte) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.delays[selector]
	return d, ok
}

// Schedule queues data against target. The effective delay is the larger of
// delay and the selector's configured minimum.
func (c *Controller) Schedule(caller, target common.Address, data []byte, predecessor, salt common.Hash, delay time.Duration) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasRole(Proposer, caller) {
		return common.Hash{}, ErrNotProposer
	}
	if _, ok := c.targets[target]; !ok {
		return common.Hash{}, ErrUnknownTarget
	}
	if len(data) < 4 {
		return common.Hash{}, ErrUnknownSelector
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	minDelay, ok := c.delays[sel]
	if !ok {
		return common.Hash{}, ErrUnknownSelector
	}
	if delay < minDelay {
		delay = minDelay
	}

	id, err := HashOperation(target, data, predecessor, salt)
	if err != nil {
		return common.Hash{}, err
	}
	if c.timestamps[id] != 0 {
		return common.Hash{}, ErrAlreadyScheduled
	}
	c.timestamps[id] = uint64(c.clock().Add(delay).Unix())

	c.sink.Publish(CallScheduled{
		ID:          id,
		Target:      target,
		Data:        "0x" + hex.EncodeToString(data),
		Predecessor: predecessor,
		Delay:       uint64(delay / time.Second),
	})
	c.logger.Infow("Call scheduled",
		"id", id.Hex(),
		"target", target.Hex(),
		"selector", hex.EncodeToString(sel[:]),
		"delay", delay.String(),
	)
	return id, nil
}

// ScheduleBatch is not offered: every call gets its own selector delay.
func (c *Controller) ScheduleBatch(common.Address, []common.Address, [][]byte, common.Hash, common.Hash, time.Duration) (common.Hash, error) {
	return common.Hash{}, ErrUnsupported
}

// UpdateDelay is not offered; delays are fixed per selector at construction.
func (c *Controller) UpdateDelay(common.Address, time.Duration) error {
	return ErrUnsupported
}

// Execute runs a ready operation with the gateway as caller. A failing call
// leaves the operation pending.
func (c *Controller) Execute(caller, target common.Address, data []byte, predecessor, salt common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasRole(Executor, caller) {
		return ErrNotExecutor
	}
	id, err := HashOperation(target, data, predecessor, salt)
	if err != nil {
		return err
	}
	if !c.isReady(id) {
		return ErrNotReady
	}
	if predecessor != (common.Hash{}) && c.timestamps[predecessor] != doneTimestamp {
		return ErrMissingDependency
	}
	t, ok := c.targets[target]
	if !ok {
		return ErrUnknownTarget
	}
	if err := t.Call(c.self, data); err != nil {
		return fmt.Errorf("execute %s: %w", id.Hex(), err)
	}
	c.timestamps[id] = doneTimestamp

	c.sink.Publish(CallExecuted{ID: id, Target: target, Data: "0x" + hex.EncodeToString(data)})
	c.logger.Infow("Call executed", "id", id.Hex(), "target", target.Hex())
	return nil
}

func (c *Controller) Cancel(caller common.Address, id common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasRole(Proposer, caller) {
		return ErrNotProposer
	}
	if !c.isPending(id) {
		return ErrNotPending
	}
	delete(c.timestamps, id)
	c.sink.Publish(Cancelled{ID: id})
	c.logger.Infow("Call cancelled", "id", id.Hex())
	return nil
}

// Timestamp returns when id becomes ready, 1 once executed, 0 if unknown.
func (c *Controller) Timestamp(id common.Hash) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timestamps[id]
}

func (c *Controller) IsOperationPending(id common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isPending(id)
}

func (c *Controller) IsOperationReady(id common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isReady(id)
}

func (c *Controller) IsOperationDone(id common.Hash) bool {
	return c.Timestamp(id) == doneTimestamp
}

func (c *Controller) isPending(id common.Hash) bool {
	return c.timestamps[id] > doneTimestamp
}

func (c *Controller) isReady(id common.Hash) bool {
	ts := c.timestamps[id]
	return ts > doneTimestamp && ts <= uint64(c.clock().Unix())
}

var operationArgs = func() abi.Arguments {
	address, _ := abi.NewType("address", "", nil)
	uint256, _ := abi.NewType("uint256", "", nil)
	bytes, _ := abi.NewType("bytes", "", nil)
	bytes32, _ := abi.NewType("bytes32", "", nil)
	return abi.Arguments{
		{Type: address},
		{Type: uint256},
		{Type: bytes},
		{Type: bytes32},
		{Type: bytes32},
	}
}()

// HashOperation is keccak256(abi.encode(target, 0, data, predecessor, salt)).
func HashOperation(target common.Address, data []byte, predecessor, salt common.Hash) (common.Hash, error) {
	packed, err := operationArgs.Pack(target, new(big.Int), data, [32]byte(predecessor), [32]byte(salt))
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode operation: %w", err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(packed)
	var id common.Hash
	h.Sum(id[:0])
	return id, nil
}
