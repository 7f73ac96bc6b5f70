// Package permission implements the compliance registry: per-account send
// and receive capabilities with an optional expiry, plus the EIP-1066 style
// transfer gate shared by the ledger's real and simulated transfers.
package permission

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/fault"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

var (
	ErrNoSendPermission         = fault.New(fault.PermissionDenied, "NO_SEND_PERMISSION")
	ErrSendPermissionExpired    = fault.New(fault.PermissionDenied, "SEND_PERMISSION_EXPIRED")
	ErrNoReceivePermission      = fault.New(fault.PermissionDenied, "NO_RECEIVE_PERMISSION")
	ErrReceivePermissionExpired = fault.New(fault.PermissionDenied, "RECEIVE_PERMISSION_EXPIRED")
)

// Permission is the compliance tuple of one account. An Expiry of zero never
// expires; otherwise the flags hold while now < Expiry.
type Permission struct {
	SendAllowed    bool   `json:"sendAllowed"`
	ReceiveAllowed bool   `json:"receiveAllowed"`
	Expiry         uint64 `json:"expiryTime"`
}

// Full is the default permission granted to bridge recipients.
var Full = Permission{SendAllowed: true, ReceiveAllowed: true}

func (p Permission) active(now uint64) bool {
	return p.Expiry == 0 || now < p.Expiry
}

func (p Permission) CanSend(now uint64) bool {
	return p.SendAllowed && p.active(now)
}

func (p Permission) CanReceive(now uint64) bool {
	return p.ReceiveAllowed && p.active(now)
}

// Set is emitted on every permission write.
type Set struct {
	Operator   common.Address `json:"operator"`
	Account    common.Address `json:"account"`
	Permission Permission     `json:"permission"`
}

func (Set) EventName() string { return "PermissionSet" }

type Registry struct {
	mu    sync.RWMutex
	roles *roles.Table
	perms map[common.Address]Permission
	sink  events.Sink
}

// NewRegistry returns an empty registry whose writes are guarded by the
// moderator role in table.
func NewRegistry(table *roles.Table, sink events.Sink) *Registry {
	if sink == nil {
		sink = events.Nop
	}
	return &Registry{
		roles: table,
		perms: make(map[common.Address]Permission),
		sink:  sink,
	}
}

// SetPermission overwrites account's permission. Moderator only. Expiry is
// not validated; a past expiry simply makes the flags inactive.
func (r *Registry) SetPermission(caller, account common.Address, p Permission) error {
	if err := r.roles.Require(roles.Moderator, caller); err != nil {
		return err
	}
	r.write(caller, account, p)
	return nil
}

// Grant records Full for account. Used by the side bridge endpoint, so the
// bridge role may call it as well as the moderator.
func (r *Registry) Grant(caller, account common.Address) error {
	if !r.roles.Has(roles.Bridge, caller) && !r.roles.Has(roles.Moderator, caller) {
		return roles.ErrNotModerator
	}
	r.write(caller, account, Full)
	return nil
}

func (r *Registry) write(caller, account common.Address, p Permission) {
	r.mu.Lock()
	r.perms[account] = p
	r.mu.Unlock()
	r.sink.Publish(Set{Operator: caller, Account: account, Permission: p})
}

// Permission returns account's permission, all-false when never set.
func (r *Registry) Permission(account common.Address) Permission {
	p, _ := r.Lookup(account)
	return p
}

// Lookup returns account's permission and whether one was ever recorded.
func (r *Registry) Lookup(account common.Address) (Permission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.perms[account]
	return p, ok
}

func (r *Registry) IsSendAllowed(account common.Address, now uint64) bool {
	return r.Permission(account).CanSend(now)
}

func (r *Registry) IsReceiveAllowed(account common.Address, now uint64) bool {
	return r.Permission(account).CanReceive(now)
}

// RequireSend distinguishes a missing flag from an expired one.
func (r *Registry) RequireSend(account common.Address, now uint64) error {
	p := r.Permission(account)
	if !p.SendAllowed {
		return ErrNoSendPermission
	}
	if !p.active(now) {
		return ErrSendPermissionExpired
	}
	return nil
}

func (r *Registry) RequireReceive(account common.Address, now uint64) error {
	p := r.Permission(account)
	if !p.ReceiveAllowed {
		return ErrNoReceivePermission
	}
	if !p.active(now) {
		return ErrReceivePermissionExpired
	}
	return nil
}

// CheckTransfer evaluates the permission half of the transfer gate: sender
// first, then receiver.
func (r *Registry) CheckTransfer(from, to common.Address, now uint64) Result {
	if !r.IsSendAllowed(from, now) {
		return Deny(PermissionRequested, CannotSend)
	}
	if !r.IsReceiveAllowed(to, now) {
		return Deny(PermissionRequested, CannotReceive)
	}
	return Allow()
}

// Snapshot returns a copy of every recorded permission.
func (r *Registry) Snapshot() map[common.Address]Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[common.Address]Permission, len(r.perms))
	for a, p := range r.perms {
		out[a] = p
	}
	return out
}

// Restore replaces every recorded permission without emitting events.
func (r *Registry) Restore(perms map[common.Address]Permission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perms = make(map[common.Address]Permission, len(perms))
	for a, p := range perms {
		r.perms[a] = p
	}
}
