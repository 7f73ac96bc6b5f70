package crosschain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/permission"
)

// Custody is how an endpoint holds value on its own domain.
type Custody interface {
	Kind() Kind
	// Ready fails when the endpoint itself cannot take custody.
	Ready() error
	// Pull takes amount from from into custody, escrowing or burning it.
	Pull(from common.Address, amount *uint256.Int) error
	// Release pays amount out of custody to to, releasing or minting it.
	Release(to common.Address, amount *uint256.Int) error
	// Redirect reports whether a delivered transfer must go to the fallback
	// account instead of to.
	Redirect(from, to common.Address) bool
	// Settled runs after every applied delivery with the nominal recipient.
	Settled(to common.Address) error
}

// Compliance is the main ledger's view used by the main custody.
type Compliance interface {
	Permissions() *permission.Registry
	Now() uint64
}

// Escrow is the wrapped token the main endpoint escrows.
type Escrow interface {
	Transfer(caller, to common.Address, units *uint256.Int) error
	TransferFrom(spender, from, to common.Address, units *uint256.Int) error
}

// MainCustody escrows wrapped units under self and releases them on
// delivery. Compliance is read from the main ledger.
type MainCustody struct {
	self   common.Address
	escrow Escrow
	ledger Compliance
}

func NewMainCustody(self common.Address, escrow Escrow, ledger Compliance) *MainCustody {
	return &MainCustody{self: self, escrow: escrow, ledger: ledger}
}

func (c *MainCustody) Kind() Kind { return KindMain }

func (c *MainCustody) Ready() error {
	if !c.ledger.Permissions().IsReceiveAllowed(c.self, c.ledger.Now()) {
		return permission.ErrNoReceivePermission
	}
	return nil
}

func (c *MainCustody) Pull(from common.Address, amount *uint256.Int) error {
	return c.escrow.TransferFrom(c.self, from, c.self, amount)
}

func (c *MainCustody) Release(to common.Address, amount *uint256.Int) error {
	return c.escrow.Transfer(c.self, to, amount)
}

func (c *MainCustody) Redirect(from, to common.Address) bool {
	perms, now := c.ledger.Permissions(), c.ledger.Now()
	return !perms.IsSendAllowed(from, now) || !perms.IsReceiveAllowed(to, now)
}

func (c *MainCustody) Settled(common.Address) error { return nil }

// Mintable is the side ledger's bridge surface.
type Mintable interface {
	Compliance
	BridgeMint(caller, to common.Address, amount *uint256.Int) error
	BridgeBurn(caller, from common.Address, amount *uint256.Int) error
}

// SideCustody burns on send and mints on delivery. self must hold the side
// ledger's bridge role.
type SideCustody struct {
	self   common.Address
	ledger Mintable
}

func NewSideCustody(self common.Address, ledger Mintable) *SideCustody {
	return &SideCustody{self: self, ledger: ledger}
}

func (c *SideCustody) Kind() Kind { return KindSide }

func (c *SideCustody) Ready() error { return nil }

func (c *SideCustody) Pull(from common.Address, amount *uint256.Int) error {
	return c.ledger.BridgeBurn(c.self, from, amount)
}

func (c *SideCustody) Release(to common.Address, amount *uint256.Int) error {
	return c.ledger.BridgeMint(c.self, to, amount)
}

// Redirect only honours an explicit denial; an account the side domain has
// never seen is credited directly.
func (c *SideCustody) Redirect(_, to common.Address) bool {
	p, ok := c.ledger.Permissions().Lookup(to)
	return ok && !p.CanReceive(c.ledger.Now())
}

// Settled gives the nominal recipient full default permission.
func (c *SideCustody) Settled(to common.Address) error {
	return c.ledger.Permissions().Grant(c.self, to)
}
