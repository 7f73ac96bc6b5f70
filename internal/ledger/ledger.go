// Package ledger implements the rebasing share ledger. Holdings are stored
// as shares; the amount a holder sees is shares * totalSupply / totalShares,
// so distributing interest rebases every balance at once without touching
// individual records.
package ledger

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/permission"
	"github.com/rebasefi/stbt-ledger/internal/roles"
	"go.uber.org/zap"
)

// RedemptionPolicy selects who may redeem.
type RedemptionPolicy string

const (
	// RedeemByIssuer restricts redemption to the issuer, which burns either its
	// own holding or a holder's holding through the holder's allowance.
	RedeemByIssuer RedemptionPolicy = "issuer"
	// RedeemByHolder lets any holder burn its own balance.
	RedeemByHolder RedemptionPolicy = "holder"
)

// Guard lets the hosting domain veto ordinary transfers. Controller
// overrides and bridge mint/burn bypass it.
type Guard interface {
	CheckTransfer(from, to common.Address) error
}

type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

var DefaultMetadata = Metadata{
	Name:     "Short-term Treasury Bond Token",
	Symbol:   "STBT",
	Decimals: 18,
}

type Option func(*Ledger)

func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

func WithSink(sink events.Sink) Option {
	return func(l *Ledger) { l.sink = sink }
}

func WithGuard(g Guard) Option {
	return func(l *Ledger) { l.guard = g }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithRedemptionPolicy(p RedemptionPolicy) Option {
	return func(l *Ledger) { l.redemption = p }
}

func WithMetadata(m Metadata) Option {
	return func(l *Ledger) { l.meta = m }
}

// WithDistributionLimits sets the minimum seconds between distributions and
// the 1e18-scaled maximum |delta| / totalSupply.
func WithDistributionLimits(minInterval uint64, maxRatio *uint256.Int) Option {
	return func(l *Ledger) {
		l.minDistributeInterval = minInterval
		l.maxDistributeRatio = maxRatio.Clone()
	}
}

type Ledger struct {
	mu sync.Mutex

	roles *roles.Table
	perms *permission.Registry

	shares      map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
	totalShares *uint256.Int
	totalSupply *uint256.Int

	lastDistributeTime    uint64
	minDistributeInterval uint64
	maxDistributeRatio    *uint256.Int

	redemption RedemptionPolicy
	meta       Metadata
	guard      Guard
	sink       events.Sink
	clock      func() time.Time
	logger     *zap.SugaredLogger
}

// New returns an empty ledger. Roles and permissions are shared with the
// caller so the registry and the ledger agree on who the moderator is.
func New(table *roles.Table, perms *permission.Registry, opts ...Option) *Ledger {
	l := &Ledger{
		roles:              table,
		perms:              perms,
		shares:             make(map[common.Address]*uint256.Int),
		allowances:         make(map[common.Address]map[common.Address]*uint256.Int),
		totalShares:        calc.Zero(),
		totalSupply:        calc.Zero(),
		maxDistributeRatio: calc.Zero(),
		redemption:         RedeemByIssuer,
		meta:               DefaultMetadata,
		sink:               events.Nop,
		clock:              time.Now,
		logger:             zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Roles() *roles.Table                { return l.roles }
func (l *Ledger) Permissions() *permission.Registry  { return l.perms }
func (l *Ledger) Metadata() Metadata                 { return l.meta }
func (l *Ledger) RedemptionPolicy() RedemptionPolicy { return l.redemption }

// IsIssuable is always true; issuance is never closed.
func (l *Ledger) IsIssuable() bool { return true }

// IsControllable is always true; the controller can always force transfers.
func (l *Ledger) IsControllable() bool { return true }

// Now is the ledger clock in unix seconds.
func (l *Ledger) Now() uint64 {
	return uint64(l.clock().Unix())
}

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSupply.Clone()
}

func (l *Ledger) TotalShares() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalShares.Clone()
}

func (l *Ledger) SharesOf(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sharesOf(account).Clone()
}

// BalanceOf is the rebasing amount held by account.
func (l *Ledger) BalanceOf(account common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.amountFor(l.sharesOf(account))
}

func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowance(owner, spender).Clone()
}

func (l *Ledger) LastDistributeTime() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastDistributeTime
}

// DistributionLimits returns the minimum interval in seconds and the
// 1e18-scaled maximum ratio.
func (l *Ledger) DistributionLimits() (uint64, *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minDistributeInterval, l.maxDistributeRatio.Clone()
}

// SharesFor converts an amount to shares at the current rate, flooring.
func (l *Ledger) SharesFor(amount *uint256.Int) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sharesFor(amount)
}

// AmountFor converts shares to an amount at the current rate, flooring.
func (l *Ledger) AmountFor(shares *uint256.Int) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.amountFor(shares)
}

func (l *Ledger) sharesFor(amount *uint256.Int) (*uint256.Int, error) {
	if l.totalShares.IsZero() {
		return amount.Clone(), nil
	}
	if l.totalSupply.IsZero() {
		return nil, ErrEmptySupply
	}
	return calc.MulDiv(amount, l.totalShares, l.totalSupply)
}

func (l *Ledger) amountFor(shares *uint256.Int) (*uint256.Int, error) {
	return amountAt(shares, l.totalSupply, l.totalShares)
}

func amountAt(shares, supply, totalShares *uint256.Int) (*uint256.Int, error) {
	if totalShares.IsZero() {
		return shares.Clone(), nil
	}
	return calc.MulDiv(shares, supply, totalShares)
}

func (l *Ledger) sharesOf(account common.Address) *uint256.Int {
	if s, ok := l.shares[account]; ok {
		return s
	}
	return calc.Zero()
}

func (l *Ledger) setShares(account common.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(l.shares, account)
		return
	}
	l.shares[account] = v
}

func (l *Ledger) allowance(owner, spender common.Address) *uint256.Int {
	if m, ok := l.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return calc.Zero()
}

func (l *Ledger) setAllowance(owner, spender common.Address, v *uint256.Int) {
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = m
	}
	if v.IsZero() {
		delete(m, spender)
		return
	}
	m[spender] = v
}

// moveShares debits from and credits to. Nothing is written unless both
// sides succeed.
func (l *Ledger) moveShares(from, to common.Address, shares *uint256.Int) error {
	fromBal := l.sharesOf(from)
	if fromBal.Lt(shares) {
		return ErrTransferExceedsBal
	}
	newFrom, err := calc.Sub(fromBal, shares)
	if err != nil {
		return err
	}
	toBal := l.sharesOf(to)
	if from == to {
		toBal = newFrom
	}
	newTo, err := calc.Add(toBal, shares)
	if err != nil {
		return err
	}
	l.setShares(from, newFrom)
	l.setShares(to, newTo)
	return nil
}

func (l *Ledger) commit(b *events.Batch) {
	b.Flush(l.sink)
}
