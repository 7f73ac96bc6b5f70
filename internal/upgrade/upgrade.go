// Package upgrade is a name to implementation indirection table. Callers
// resolve an implementation per use, so the owner can swap it without the
// callers holding stale handles.
package upgrade

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rebasefi/stbt-ledger/internal/fault"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

var ErrUnknownImplementation = fault.New(fault.InvalidArgument, "UNKNOWN_IMPLEMENTATION")

type Reset struct {
	Name    string `json:"name"`
	Version uint64 `json:"version"`
}

func (Reset) EventName() string { return "ImplementationReset" }

type entry[T any] struct {
	impl    T
	version uint64
}

type Table[T any] struct {
	mu      sync.RWMutex
	roles   *roles.Table
	entries map[string]entry[T]
}

func NewTable[T any](table *roles.Table) *Table[T] {
	return &Table[T]{roles: table, entries: make(map[string]entry[T])}
}

// Register installs the first implementation for name during wiring.
func (t *Table[T]) Register(name string, impl T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[name]
	t.entries[name] = entry[T]{impl: impl, version: e.version + 1}
}

func (t *Table[T]) Implementation(name string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[name]
	if !ok {
		var zero T
		return zero, ErrUnknownImplementation
	}
	return e.impl, nil
}

// ResetImplementation swaps the implementation behind name. Owner only.
func (t *Table[T]) ResetImplementation(caller common.Address, name string, impl T) (Reset, error) {
	if err := t.roles.Require(roles.Owner, caller); err != nil {
		return Reset{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[name]
	if !ok {
		return Reset{}, ErrUnknownImplementation
	}
	t.entries[name] = entry[T]{impl: impl, version: e.version + 1}
	return Reset{Name: name, Version: e.version + 1}, nil
}

func (t *Table[T]) Version(name string) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[name].version
}
