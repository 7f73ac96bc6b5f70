package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/permission"
)

func (l *Ledger) Transfer(caller, to common.Address, amount *uint256.Int) error {
	return l.TransferWithData(caller, to, amount, nil)
}

// TransferWithData moves amount from caller to to. data is carried for the
// caller's records only.
func (l *Ledger) TransferWithData(caller, to common.Address, amount *uint256.Int, _ []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b events.Batch
	if err := l.gatedTransfer(caller, to, amount, &b); err != nil {
		return err
	}
	l.commit(&b)
	return nil
}

func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	return l.TransferFromWithData(spender, from, to, amount, nil)
}

// TransferFromWithData spends spender's allowance over from's holding. The
// allowance is checked before any permission.
func (l *Ledger) TransferFromWithData(spender, from, to common.Address, amount *uint256.Int, _ []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.allowance(from, spender)
	if current.Lt(amount) {
		return ErrTransferExceedsAllw
	}
	var b events.Batch
	if err := l.gatedTransfer(from, to, amount, &b); err != nil {
		return err
	}
	remaining, err := calc.Sub(current, amount)
	if err != nil {
		return err
	}
	l.setAllowance(from, spender, remaining)
	b.Add(Approval{Owner: from, Spender: spender, Amount: remaining.Clone()})
	l.commit(&b)
	return nil
}

// TransferShares moves an exact number of shares from caller to to under the
// same gate as Transfer.
func (l *Ledger) TransferShares(caller, to common.Address, shares *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkGate(caller, to); err != nil {
		return err
	}
	amount, err := l.amountFor(shares)
	if err != nil {
		return err
	}
	if err := l.moveShares(caller, to, shares); err != nil {
		return err
	}
	var b events.Batch
	b.Add(Transfer{From: caller, To: to, Amount: amount})
	b.Add(TransferShares{From: caller, To: to, Shares: shares.Clone()})
	l.commit(&b)
	return nil
}

// checkGate applies the zero-address rules, the domain guard and the
// permission registry, in that order.
func (l *Ledger) checkGate(from, to common.Address) error {
	if from == (common.Address{}) {
		return ErrTransferFromZero
	}
	if to == (common.Address{}) {
		return ErrTransferToZero
	}
	if l.guard != nil {
		if err := l.guard.CheckTransfer(from, to); err != nil {
			return err
		}
	}
	now := l.Now()
	if err := l.perms.RequireSend(from, now); err != nil {
		return err
	}
	return l.perms.RequireReceive(to, now)
}

func (l *Ledger) gatedTransfer(from, to common.Address, amount *uint256.Int, b *events.Batch) error {
	if err := l.checkGate(from, to); err != nil {
		return err
	}
	return l.ungatedTransfer(from, to, amount, b)
}

func (l *Ledger) ungatedTransfer(from, to common.Address, amount *uint256.Int, b *events.Batch) error {
	shares, err := l.sharesFor(amount)
	if err != nil {
		return err
	}
	if err := l.moveShares(from, to, shares); err != nil {
		return err
	}
	b.Add(Transfer{From: from, To: to, Amount: amount.Clone()})
	b.Add(TransferShares{From: from, To: to, Shares: shares})
	return nil
}

// CanTransfer simulates Transfer from from without mutating anything and
// reports the first failing gate.
func (l *Ledger) CanTransfer(from, to common.Address, amount *uint256.Int) permission.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canTransfer(from, to, amount)
}

// CanTransferFrom is CanTransfer preceded by the allowance check.
func (l *Ledger) CanTransferFrom(spender, from, to common.Address, amount *uint256.Int) permission.Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowance(from, spender).Lt(amount) {
		return permission.Deny(permission.UpperLimit, permission.AllowanceNotEnough)
	}
	return l.canTransfer(from, to, amount)
}

func (l *Ledger) canTransfer(from, to common.Address, amount *uint256.Int) permission.Result {
	if l.guard != nil && l.guard.CheckTransfer(from, to) != nil {
		return permission.Deny(permission.RevokedOrBanned, permission.Forbidden)
	}
	if res := l.perms.CheckTransfer(from, to, l.Now()); !res.OK {
		return res
	}
	shares, err := l.sharesFor(amount)
	if err != nil || l.sharesOf(from).Lt(shares) {
		return permission.Deny(permission.UpperLimit, permission.SharesNotEnough)
	}
	return permission.Allow()
}
