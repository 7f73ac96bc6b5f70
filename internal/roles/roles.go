// Package roles holds the explicit role to principal table used by the ledger
// and the bridge endpoints. Each role has exactly one holder; the owner
// assigns the others.
package roles

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rebasefi/stbt-ledger/internal/fault"
)

type Role string

const (
	Owner      Role = "owner"
	Issuer     Role = "issuer"
	Controller Role = "controller"
	Moderator  Role = "moderator"
	Bridge     Role = "bridge"
	Messager   Role = "messager"
)

var (
	ErrNotOwner      = fault.New(fault.AuthorizationDenied, "NOT_OWNER")
	ErrNotIssuer     = fault.New(fault.AuthorizationDenied, "NOT_ISSUER")
	ErrNotController = fault.New(fault.AuthorizationDenied, "NOT_CONTROLLER")
	ErrNotModerator  = fault.New(fault.AuthorizationDenied, "NOT_MODERATOR")
	ErrNotBridge     = fault.New(fault.AuthorizationDenied, "NOT_BRIDGE")
	ErrNotMessager   = fault.New(fault.AuthorizationDenied, "NOT_MESSAGER")
	ErrZeroAddress   = fault.New(fault.InvalidArgument, "ROLE_TO_THE_ZERO_ADDRESS")
)

var denied = map[Role]*fault.Error{
	Owner:      ErrNotOwner,
	Issuer:     ErrNotIssuer,
	Controller: ErrNotController,
	Moderator:  ErrNotModerator,
	Bridge:     ErrNotBridge,
	Messager:   ErrNotMessager,
}

// Changed is emitted whenever a role changes hands.
type Changed struct {
	Role     Role           `json:"role"`
	Previous common.Address `json:"previous"`
	Current  common.Address `json:"current"`
}

func (Changed) EventName() string { return "RoleChanged" }

type Table struct {
	mu      sync.RWMutex
	holders map[Role]common.Address
}

func NewTable(owner common.Address) *Table {
	return &Table{holders: map[Role]common.Address{Owner: owner}}
}

// Holder returns the current holder of r, or the zero address.
func (t *Table) Holder(r Role) common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.holders[r]
}

// Has reports whether caller holds r. An unassigned role is held by nobody.
func (t *Table) Has(r Role, caller common.Address) bool {
	holder := t.Holder(r)
	return holder != (common.Address{}) && holder == caller
}

// Require returns the role's denial error unless caller holds r.
func (t *Table) Require(r Role, caller common.Address) error {
	if t.Has(r, caller) {
		return nil
	}
	if err, ok := denied[r]; ok {
		return err
	}
	return fault.New(fault.AuthorizationDenied, "NOT_"+string(r))
}

// Assign hands r to who. Only the owner may assign roles, including
// ownership itself.
func (t *Table) Assign(caller common.Address, r Role, who common.Address) (Changed, error) {
	if err := t.Require(Owner, caller); err != nil {
		return Changed{}, err
	}
	if r == Owner && who == (common.Address{}) {
		return Changed{}, ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.holders[r]
	t.holders[r] = who
	return Changed{Role: r, Previous: prev, Current: who}, nil
}

// Snapshot returns a copy of all assignments.
func (t *Table) Snapshot() map[Role]common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Role]common.Address, len(t.holders))
	for r, a := range t.holders {
		out[r] = a
	}
	return out
}

// Restore replaces all assignments.
func (t *Table) Restore(holders map[Role]common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holders = make(map[Role]common.Address, len(holders))
	for r, a := range holders {
		t.holders[r] = a
	}
}
