package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

func (l *Ledger) SetIssuer(caller, who common.Address) error {
	return l.assign(caller, roles.Issuer, who)
}

func (l *Ledger) SetController(caller, who common.Address) error {
	return l.assign(caller, roles.Controller, who)
}

func (l *Ledger) SetModerator(caller, who common.Address) error {
	return l.assign(caller, roles.Moderator, who)
}

// SetBridge names the endpoint allowed to BridgeMint and BridgeBurn.
func (l *Ledger) SetBridge(caller, who common.Address) error {
	return l.assign(caller, roles.Bridge, who)
}

func (l *Ledger) TransferOwnership(caller, who common.Address) error {
	return l.assign(caller, roles.Owner, who)
}

func (l *Ledger) assign(caller common.Address, r roles.Role, who common.Address) error {
	changed, err := l.roles.Assign(caller, r, who)
	if err != nil {
		return err
	}
	l.sink.Publish(changed)
	l.logger.Infow("Role assigned", "role", string(r), "holder", who.Hex())
	return nil
}

func (l *Ledger) SetMinDistributeInterval(caller common.Address, seconds uint64) error {
	if err := l.roles.Require(roles.Owner, caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minDistributeInterval = seconds
	l.limitsChanged()
	return nil
}

// SetMaxDistributeRatio takes a 1e18-scaled ratio.
func (l *Ledger) SetMaxDistributeRatio(caller common.Address, ratio *uint256.Int) error {
	if err := l.roles.Require(roles.Owner, caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxDistributeRatio = ratio.Clone()
	l.limitsChanged()
	return nil
}

func (l *Ledger) limitsChanged() {
	var b events.Batch
	b.Add(DistributionLimitsChanged{
		MinDistributeInterval: l.minDistributeInterval,
		MaxDistributeRatio:    l.maxDistributeRatio.Clone(),
	})
	l.commit(&b)
}
