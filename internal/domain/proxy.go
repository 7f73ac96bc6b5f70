package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rebasefi/stbt-ledger/internal/ledger"
	"github.com/rebasefi/stbt-ledger/internal/permission"
	"github.com/rebasefi/stbt-ledger/internal/upgrade"
)

// ledgerProxy resolves the current ledger implementation on every call, so
// the wrapped token, the bridge custody and the timelock keep working
// across an implementation reset.
type ledgerProxy struct {
	table *upgrade.Table[*ledger.Ledger]
	name  string
}

func (p ledgerProxy) current() *ledger.Ledger {
	l, err := p.table.Implementation(p.name)
	if err != nil {
		panic(fmt.Sprintf("domain: ledger %q not registered", p.name))
	}
	return l
}

func (p ledgerProxy) Permissions() *permission.Registry { return p.current().Permissions() }
func (p ledgerProxy) Now() uint64                       { return p.current().Now() }

func (p ledgerProxy) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	return p.current().TransferFrom(spender, from, to, amount)
}

func (p ledgerProxy) TransferShares(caller, to common.Address, shares *uint256.Int) error {
	return p.current().TransferShares(caller, to, shares)
}

func (p ledgerProxy) SharesOf(account common.Address) *uint256.Int {
	return p.current().SharesOf(account)
}

func (p ledgerProxy) SharesFor(amount *uint256.Int) (*uint256.Int, error) {
	return p.current().SharesFor(amount)
}

func (p ledgerProxy) AmountFor(shares *uint256.Int) (*uint256.Int, error) {
	return p.current().AmountFor(shares)
}

func (p ledgerProxy) BridgeMint(caller, to common.Address, amount *uint256.Int) error {
	return p.current().BridgeMint(caller, to, amount)
}

func (p ledgerProxy) BridgeBurn(caller, from common.Address, amount *uint256.Int) error {
	return p.current().BridgeBurn(caller, from, amount)
}

func (p ledgerProxy) Call(caller common.Address, data []byte) error {
	return p.current().Call(caller, data)
}
