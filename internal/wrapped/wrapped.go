// Package wrapped is a fixed-unit token over ledger shares. One wrapped unit
// is one share held by the adapter, so balances do not move on a rebase;
// only the amount a unit redeems for does.
package wrapped

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/fault"
	"go.uber.org/zap"
)

var (
	ErrZeroAmount           = fault.New(fault.InvalidArgument, "ZERO_AMOUNT")
	ErrTransferToZero       = fault.New(fault.InvalidArgument, "TRANSFER_TO_THE_ZERO_ADDRESS")
	ErrApproveToZero        = fault.New(fault.InvalidArgument, "APPROVE_TO_THE_ZERO_ADDRESS")
	ErrExceedsBalance       = fault.New(fault.InsufficientFunds, "TRANSFER_AMOUNT_EXCEEDS_BALANCE")
	ErrExceedsAllowance     = fault.New(fault.InsufficientFunds, "TRANSFER_AMOUNT_EXCEEDS_ALLOWANCE")
	ErrUnwrapExceedsBalance = fault.New(fault.InsufficientFunds, "UNWRAP_AMOUNT_EXCEEDS_BALANCE")
)

// Ledger is the part of the share ledger the adapter custodies through.
type Ledger interface {
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	TransferShares(caller, to common.Address, shares *uint256.Int) error
	SharesOf(account common.Address) *uint256.Int
	SharesFor(amount *uint256.Int) (*uint256.Int, error)
	AmountFor(shares *uint256.Int) (*uint256.Int, error)
}

type Transfer struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"value"`
}

func (Transfer) EventName() string { return "WrappedTransfer" }

type Approval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"value"`
}

func (Approval) EventName() string { return "WrappedApproval" }

type Wrapped struct {
	Account common.Address `json:"account"`
	Amount  *uint256.Int   `json:"stbtAmount"`
	Units   *uint256.Int   `json:"wrappedAmount"`
}

func (Wrapped) EventName() string { return "Wrapped" }

type Unwrapped struct {
	Account common.Address `json:"account"`
	Units   *uint256.Int   `json:"wrappedAmount"`
	Amount  *uint256.Int   `json:"stbtAmount"`
}

func (Unwrapped) EventName() string { return "Unwrapped" }

type Token struct {
	mu sync.Mutex

	self   common.Address
	name   string
	symbol string
	ledger Ledger
	sink   events.Sink
	logger *zap.SugaredLogger

	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
	totalSupply *uint256.Int
}

// New returns an adapter custodying shares under the self account on ledger.
func New(self common.Address, name, symbol string, ledger Ledger, sink events.Sink, logger *zap.SugaredLogger) *Token {
	if sink == nil {
		sink = events.Nop
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Token{
		self:        self,
		name:        name,
		symbol:      symbol,
		ledger:      ledger,
		sink:        sink,
		logger:      logger,
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
		totalSupply: calc.Zero(),
	}
}

func (t *Token) Address() common.Address { return t.self }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return 18 }

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSupply.Clone()
}

func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceOf(account).Clone()
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowance(owner, spender).Clone()
}

// AmountPerUnit is the ledger amount one whole (1e18) wrapped unit redeems for.
func (t *Token) AmountPerUnit() (*uint256.Int, error) {
	return t.ledger.AmountFor(calc.Scale)
}

func (t *Token) UnitsForAmount(amount *uint256.Int) (*uint256.Int, error) {
	return t.ledger.SharesFor(amount)
}

func (t *Token) AmountForUnits(units *uint256.Int) (*uint256.Int, error) {
	return t.ledger.AmountFor(units)
}

// Wrap pulls amount from caller on the ledger and mints the shares that
// actually arrived. The caller must have approved the adapter.
func (t *Token) Wrap(caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.ledger.SharesOf(t.self)
	if err := t.ledger.TransferFrom(t.self, caller, t.self, amount); err != nil {
		return nil, err
	}
	units, err := calc.Sub(t.ledger.SharesOf(t.self), before)
	if err != nil {
		return nil, err
	}
	if err := t.mint(caller, units); err != nil {
		return nil, err
	}
	t.sink.Publish(
		Transfer{From: common.Address{}, To: caller, Amount: units.Clone()},
		Wrapped{Account: caller, Amount: amount.Clone(), Units: units.Clone()},
	)
	t.logger.Infow("Wrapped", "account", caller.Hex(), "amount", amount.Dec(), "units", units.Dec())
	return units, nil
}

// Unwrap burns units from caller and hands the same number of shares back on
// the ledger. It returns the ledger amount those shares are worth.
func (t *Token) Unwrap(caller common.Address, units *uint256.Int) (*uint256.Int, error) {
	if units.IsZero() {
		return nil, ErrZeroAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bal := t.balanceOf(caller)
	if bal.Lt(units) {
		return nil, ErrUnwrapExceedsBalance
	}
	amount, err := t.ledger.AmountFor(units)
	if err != nil {
		return nil, err
	}
	if err := t.ledger.TransferShares(t.self, caller, units); err != nil {
		return nil, err
	}
	t.setBalance(caller, new(uint256.Int).Sub(bal, units))
	t.totalSupply = new(uint256.Int).Sub(t.totalSupply, units)

	t.sink.Publish(
		Transfer{From: caller, To: common.Address{}, Amount: units.Clone()},
		Unwrapped{Account: caller, Units: units.Clone(), Amount: amount.Clone()},
	)
	t.logger.Infow("Unwrapped", "account", caller.Hex(), "units", units.Dec(), "amount", amount.Dec())
	return amount, nil
}

func (t *Token) Transfer(caller, to common.Address, units *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.move(caller, to, units); err != nil {
		return err
	}
	t.sink.Publish(Transfer{From: caller, To: to, Amount: units.Clone()})
	return nil
}

func (t *Token) TransferFrom(spender, from, to common.Address, units *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.allowance(from, spender)
	if current.Lt(units) {
		return ErrExceedsAllowance
	}
	if err := t.move(from, to, units); err != nil {
		return err
	}
	remaining := new(uint256.Int).Sub(current, units)
	t.setAllowance(from, spender, remaining)
	t.sink.Publish(
		Transfer{From: from, To: to, Amount: units.Clone()},
		Approval{Owner: from, Spender: spender, Amount: remaining.Clone()},
	)
	return nil
}

func (t *Token) Approve(caller, spender common.Address, units *uint256.Int) error {
	if spender == (common.Address{}) {
		return ErrApproveToZero
	}
	t.mu.Lock()
	t.setAllowance(caller, spender, units.Clone())
	t.mu.Unlock()
	t.sink.Publish(Approval{Owner: caller, Spender: spender, Amount: units.Clone()})
	return nil
}

func (t *Token) move(from, to common.Address, units *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrTransferToZero
	}
	fromBal := t.balanceOf(from)
	if fromBal.Lt(units) {
		return ErrExceedsBalance
	}
	newFrom := new(uint256.Int).Sub(fromBal, units)
	toBal := t.balanceOf(to)
	if from == to {
		toBal = newFrom
	}
	newTo, err := calc.Add(toBal, units)
	if err != nil {
		return err
	}
	t.setBalance(from, newFrom)
	t.setBalance(to, newTo)
	return nil
}

func (t *Token) mint(to common.Address, units *uint256.Int) error {
	newBal, err := calc.Add(t.balanceOf(to), units)
	if err != nil {
		return err
	}
	newSupply, err := calc.Add(t.totalSupply, units)
	if err != nil {
		return err
	}
	t.setBalance(to, newBal)
	t.totalSupply = newSupply
	return nil
}

func (t *Token) balanceOf(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return calc.Zero()
}

func (t *Token) setBalance(account common.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(t.balances, account)
		return
	}
	t.balances[account] = v
}

func (t *Token) allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a
	}
	return calc.Zero()
}

func (t *Token) setAllowance(owner, spender common.Address, v *uint256.Int) {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = m
	}
	if v.IsZero() {
		delete(m, spender)
		return
	}
	m[spender] = v
}

// Snapshot is the persisted state of the adapter. Quantities are base-10
// strings.
type Snapshot struct {
	TotalSupply string                                       `json:"totalSupply"`
	Balances    map[common.Address]string                    `json:"balances"`
	Allowances  map[common.Address]map[common.Address]string `json:"allowances"`
}

func (t *Token) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		TotalSupply: t.totalSupply.Dec(),
		Balances:    make(map[common.Address]string, len(t.balances)),
		Allowances:  make(map[common.Address]map[common.Address]string, len(t.allowances)),
	}
	for a, v := range t.balances {
		s.Balances[a] = v.Dec()
	}
	for owner, m := range t.allowances {
		if len(m) == 0 {
			continue
		}
		inner := make(map[common.Address]string, len(m))
		for spender, v := range m {
			inner[spender] = v.Dec()
		}
		s.Allowances[owner] = inner
	}
	return s
}

func (t *Token) Restore(s Snapshot) error {
	supply, err := calc.ParseUnits(s.TotalSupply)
	if err != nil {
		return err
	}
	balances := make(map[common.Address]*uint256.Int, len(s.Balances))
	for a, v := range s.Balances {
		n, err := calc.ParseUnits(v)
		if err != nil {
			return err
		}
		balances[a] = n
	}
	allowances := make(map[common.Address]map[common.Address]*uint256.Int, len(s.Allowances))
	for owner, m := range s.Allowances {
		inner := make(map[common.Address]*uint256.Int, len(m))
		for spender, v := range m {
			n, err := calc.ParseUnits(v)
			if err != nil {
				return err
			}
			inner[spender] = n
		}
		allowances[owner] = inner
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalSupply = supply
	t.balances = balances
	t.allowances = allowances
	return nil
}
