// Package journal records ledger, document and bridge events in append
// order so they can be listed and replayed to API clients.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
)

// Entry is one journaled event. Seq is assigned by the journal.
type Entry struct {
	Seq    uint64          `json:"seq"`
	Domain string          `json:"domain"`
	Name   string          `json:"name"`
	Body   json.RawMessage `json:"body"`
	At     time.Time       `json:"at"`
}

// Journal stores entries. An empty domain in List matches every domain.
type Journal interface {
	Append(ctx context.Context, entries ...Entry) error
	List(ctx context.Context, domain string, afterSeq uint64, limit int) ([]Entry, error)
	RecordReceipt(ctx context.Context, domain string, r crosschain.Receipt) error
	Receipt(ctx context.Context, envelopeID string) (crosschain.Receipt, bool, error)
	Close()
}

const maxList = 500

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxList {
		return maxList
	}
	return limit
}
