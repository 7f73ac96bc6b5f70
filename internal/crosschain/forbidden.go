package crosschain

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

// Forbidden is a controller-managed block list local to one domain. It
// gates cross-domain sends and, on the side domain, every ledger transfer.
type Forbidden struct {
	mu     sync.RWMutex
	roles  *roles.Table
	sink   events.Sink
	blocks map[common.Address]bool
}

func NewForbidden(table *roles.Table, sink events.Sink) *Forbidden {
	if sink == nil {
		sink = events.Nop
	}
	return &Forbidden{roles: table, sink: sink, blocks: make(map[common.Address]bool)}
}

func (f *Forbidden) Set(caller, account common.Address, forbidden bool) error {
	if err := f.roles.Require(roles.Controller, caller); err != nil {
		return err
	}
	f.mu.Lock()
	if forbidden {
		f.blocks[account] = true
	} else {
		delete(f.blocks, account)
	}
	f.mu.Unlock()
	f.sink.Publish(ForbiddenSet{Account: account, Forbidden: forbidden})
	return nil
}

func (f *Forbidden) IsForbidden(account common.Address) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.blocks[account]
}

// CheckTransfer rejects a transfer touching a forbidden account.
func (f *Forbidden) CheckTransfer(from, to common.Address) error {
	if f.IsForbidden(from) || f.IsForbidden(to) {
		return ErrForbidden
	}
	return nil
}

func (f *Forbidden) Snapshot() []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]common.Address, 0, len(f.blocks))
	for a := range f.blocks {
		out = append(out, a)
	}
	return out
}

func (f *Forbidden) Restore(accounts []common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = make(map[common.Address]bool, len(accounts))
	for _, a := range accounts {
		f.blocks[a] = true
	}
}
