package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/events"
)

// Approve sets owner's allowance for spender, in amount units.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.approve(owner, spender, amount.Clone())
}

func (l *Ledger) IncreaseAllowance(owner, spender common.Address, added *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := calc.Add(l.allowance(owner, spender), added)
	if err != nil {
		return err
	}
	return l.approve(owner, spender, next)
}

func (l *Ledger) DecreaseAllowance(owner, spender common.Address, subtracted *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.allowance(owner, spender)
	if current.Lt(subtracted) {
		return ErrAllowanceBelowZero
	}
	next, err := calc.Sub(current, subtracted)
	if err != nil {
		return err
	}
	return l.approve(owner, spender, next)
}

func (l *Ledger) approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) {
		return ErrApproveFromZero
	}
	if spender == (common.Address{}) {
		return ErrApproveToZero
	}
	l.setAllowance(owner, spender, amount)

	var b events.Batch
	b.Add(Approval{Owner: owner, Spender: spender, Amount: amount.Clone()})
	l.commit(&b)
	return nil
}
