package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

// Issue mints amount to to. Issuer only. A zero amount is a no-op for any
// recipient, including the null account.
func (l *Ledger) Issue(caller, to common.Address, amount *uint256.Int, data []byte) error {
	if err := l.roles.Require(roles.Issuer, caller); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	if to == (common.Address{}) {
		return ErrMintToZero
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.perms.RequireReceive(to, l.Now()); err != nil {
		return err
	}
	var b events.Batch
	if err := l.mint(to, amount, &b); err != nil {
		return err
	}
	b.Add(Issued{Operator: caller, To: to, Amount: amount.Clone(), Data: data})
	l.commit(&b)
	return nil
}

// Redeem burns amount from the caller's own holding.
func (l *Ledger) Redeem(caller common.Address, amount *uint256.Int, data []byte) error {
	if l.redemption == RedeemByIssuer {
		if err := l.roles.Require(roles.Issuer, caller); err != nil {
			return err
		}
	}
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.perms.RequireSend(caller, l.Now()); err != nil {
		return err
	}
	var b events.Batch
	if err := l.burn(caller, amount, &b); err != nil {
		return err
	}
	b.Add(Redeemed{Operator: caller, From: caller, Amount: amount.Clone(), Data: data})
	l.commit(&b)
	return nil
}

// RedeemFrom burns amount from holder, consuming holder's allowance to the
// caller. The allowance is checked before the holder's permission.
func (l *Ledger) RedeemFrom(caller, holder common.Address, amount *uint256.Int, data []byte) error {
	if l.redemption == RedeemByIssuer {
		if err := l.roles.Require(roles.Issuer, caller); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.allowance(holder, caller)
	if current.Lt(amount) {
		return ErrRedeemExceedsAllw
	}
	if amount.IsZero() {
		return nil
	}
	if err := l.perms.RequireSend(holder, l.Now()); err != nil {
		return err
	}
	var b events.Batch
	if err := l.burn(holder, amount, &b); err != nil {
		return err
	}
	remaining, err := calc.Sub(current, amount)
	if err != nil {
		return err
	}
	l.setAllowance(holder, caller, remaining)
	b.Add(Redeemed{Operator: caller, From: holder, Amount: amount.Clone(), Data: data})
	b.Add(Approval{Owner: holder, Spender: caller, Amount: remaining.Clone()})
	l.commit(&b)
	return nil
}

// BridgeMint credits to without a permission check. Reserved for the bridge
// endpoint hosting a side-domain clone, which applies its own receive rule.
func (l *Ledger) BridgeMint(caller, to common.Address, amount *uint256.Int) error {
	if err := l.roles.Require(roles.Bridge, caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrMintToZero
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var b events.Batch
	if err := l.mint(to, amount, &b); err != nil {
		return err
	}
	b.Add(Issued{Operator: caller, To: to, Amount: amount.Clone()})
	l.commit(&b)
	return nil
}

// BridgeBurn debits from without allowance or permission checks.
func (l *Ledger) BridgeBurn(caller, from common.Address, amount *uint256.Int) error {
	if err := l.roles.Require(roles.Bridge, caller); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var b events.Batch
	if err := l.burn(from, amount, &b); err != nil {
		return err
	}
	b.Add(Redeemed{Operator: caller, From: from, Amount: amount.Clone()})
	l.commit(&b)
	return nil
}

// mint converts at the pre-mint rate, then grows both totals.
func (l *Ledger) mint(to common.Address, amount *uint256.Int, b *events.Batch) error {
	shares, err := l.sharesFor(amount)
	if err != nil {
		return err
	}
	newBal, err := calc.Add(l.sharesOf(to), shares)
	if err != nil {
		return err
	}
	newShares, err := calc.Add(l.totalShares, shares)
	if err != nil {
		return err
	}
	newSupply, err := calc.Add(l.totalSupply, amount)
	if err != nil {
		return err
	}

	l.setShares(to, newBal)
	l.totalShares = newShares
	l.totalSupply = newSupply

	b.Add(Transfer{From: common.Address{}, To: to, Amount: amount.Clone()})
	b.Add(TransferShares{From: common.Address{}, To: to, Shares: shares})
	return nil
}

// burn removes the shares worth amount from holder. The post-rebase amount
// is valued after totalShares shrinks but before totalSupply does.
func (l *Ledger) burn(holder common.Address, amount *uint256.Int, b *events.Batch) error {
	if holder == (common.Address{}) {
		return ErrBurnFromZero
	}
	shares, err := l.sharesFor(amount)
	if err != nil {
		return err
	}
	bal := l.sharesOf(holder)
	if bal.Lt(shares) {
		return ErrBurnExceedsBalance
	}
	pre, err := l.amountFor(shares)
	if err != nil {
		return err
	}
	newBal, err := calc.Sub(bal, shares)
	if err != nil {
		return err
	}
	newShares, err := calc.Sub(l.totalShares, shares)
	if err != nil {
		return err
	}
	post, err := amountAt(shares, l.totalSupply, newShares)
	if err != nil {
		return err
	}
	newSupply, err := calc.Sub(l.totalSupply, amount)
	if err != nil {
		return err
	}

	l.setShares(holder, newBal)
	l.totalShares = newShares
	l.totalSupply = newSupply

	b.Add(SharesBurnt{Account: holder, PreRebaseAmount: pre, PostRebaseAmount: post, Shares: shares})
	b.Add(Transfer{From: holder, To: common.Address{}, Amount: amount.Clone()})
	return nil
}
