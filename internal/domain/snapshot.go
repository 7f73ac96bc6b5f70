package domain

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
	"github.com/rebasefi/stbt-ledger/internal/documents"
	"github.com/rebasefi/stbt-ledger/internal/ledger"
	"github.com/rebasefi/stbt-ledger/internal/roles"
	"github.com/rebasefi/stbt-ledger/internal/wrapped"
)

// State is everything a domain persists between restarts. Pending timelock
// operations and peer allow-lists are rebuilt from configuration.
type State struct {
	Ledger        ledger.Snapshot               `json:"ledger"`
	Wrapped       *wrapped.Snapshot             `json:"wrapped,omitempty"`
	Documents     []documents.Document          `json:"documents"`
	Forbidden     []common.Address              `json:"forbidden"`
	Endpoint      crosschain.State              `json:"endpoint"`
	EndpointRoles map[roles.Role]common.Address `json:"endpointRoles,omitempty"`
}

func (d *Domain) Capture() State {
	s := State{
		Ledger:    d.Ledger().Snapshot(),
		Documents: d.Documents.Snapshot(),
		Forbidden: d.Forbidden.Snapshot(),
		Endpoint:  d.Endpoint.Snapshot(),
	}
	if d.Wrapped != nil {
		w := d.Wrapped.Snapshot()
		s.Wrapped = &w
	}
	if d.Endpoint.Roles() != d.Roles {
		s.EndpointRoles = d.Endpoint.Roles().Snapshot()
	}
	return s
}

func (d *Domain) Apply(s State) error {
	if err := d.Ledger().Restore(s.Ledger); err != nil {
		return fmt.Errorf("restore %s ledger: %w", d.Name, err)
	}
	if d.Wrapped != nil && s.Wrapped != nil {
		if err := d.Wrapped.Restore(*s.Wrapped); err != nil {
			return fmt.Errorf("restore %s wrapped token: %w", d.Name, err)
		}
	}
	d.Documents.Restore(s.Documents)
	d.Forbidden.Restore(s.Forbidden)
	d.Endpoint.Restore(s.Endpoint)
	if s.EndpointRoles != nil && d.Endpoint.Roles() != d.Roles {
		d.Endpoint.Roles().Restore(s.EndpointRoles)
	}
	return nil
}

// SnapshotKey, CaptureJSON and RestoreJSON let the snapshot store persist
// the domain.
func (d *Domain) SnapshotKey() string { return d.Name }

func (d *Domain) CaptureJSON() ([]byte, error) {
	return json.Marshal(d.Capture())
}

func (d *Domain) RestoreJSON(data []byte) error {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode %s state: %w", d.Name, err)
	}
	return d.Apply(s)
}
