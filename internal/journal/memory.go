package journal

import (
	"context"
	"sync"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
)

type Memory struct {
	mu       sync.RWMutex
	entries  []Entry
	receipts map[string]crosschain.Receipt
}

func NewMemory() *Memory {
	return &Memory{receipts: make(map[string]crosschain.Receipt)}
}

func (m *Memory) Append(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		e.Seq = uint64(len(m.entries)) + 1
		m.entries = append(m.entries, e)
	}
	return nil
}

func (m *Memory) List(_ context.Context, domain string, afterSeq uint64, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = clampLimit(limit)
	out := make([]Entry, 0)
	if afterSeq >= uint64(len(m.entries)) {
		return out, nil
	}
	for _, e := range m.entries[afterSeq:] {
		if domain != "" && e.Domain != domain {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) RecordReceipt(_ context.Context, _ string, r crosschain.Receipt) error {
	if r.EnvelopeID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[r.EnvelopeID] = r
	return nil
}

func (m *Memory) Receipt(_ context.Context, envelopeID string) (crosschain.Receipt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[envelopeID]
	return r, ok, nil
}

func (m *Memory) Close() {}
