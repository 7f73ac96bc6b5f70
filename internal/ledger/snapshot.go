package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/permission"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

// Snapshot is the full persisted state of a ledger, including its roles and
// permission registry. Quantities are base-10 strings.
type Snapshot struct {
	TotalShares           string                                       `json:"totalShares"`
	TotalSupply           string                                       `json:"totalSupply"`
	LastDistributeTime    uint64                                       `json:"lastDistributeTime"`
	MinDistributeInterval uint64                                       `json:"minDistributeInterval"`
	MaxDistributeRatio    string                                       `json:"maxDistributeRatio"`
	Shares                map[common.Address]string                    `json:"shares"`
	Allowances            map[common.Address]map[common.Address]string `json:"allowances"`
	Permissions           map[common.Address]permission.Permission     `json:"permissions"`
	Roles                 map[roles.Role]common.Address                `json:"roles"`
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		TotalShares:           l.totalShares.Dec(),
		TotalSupply:           l.totalSupply.Dec(),
		LastDistributeTime:    l.lastDistributeTime,
		MinDistributeInterval: l.minDistributeInterval,
		MaxDistributeRatio:    l.maxDistributeRatio.Dec(),
		Shares:                make(map[common.Address]string, len(l.shares)),
		Allowances:            make(map[common.Address]map[common.Address]string, len(l.allowances)),
		Permissions:           l.perms.Snapshot(),
		Roles:                 l.roles.Snapshot(),
	}
	for a, v := range l.shares {
		s.Shares[a] = v.Dec()
	}
	for owner, m := range l.allowances {
		if len(m) == 0 {
			continue
		}
		inner := make(map[common.Address]string, len(m))
		for spender, v := range m {
			inner[spender] = v.Dec()
		}
		s.Allowances[owner] = inner
	}
	return s
}

// Restore replaces the ledger state with s. The sum of restored shares must
// equal the restored totalShares.
func (l *Ledger) Restore(s Snapshot) error {
	totalShares, err := calc.ParseUnits(s.TotalShares)
	if err != nil {
		return fmt.Errorf("restore total shares: %w", err)
	}
	totalSupply, err := calc.ParseUnits(s.TotalSupply)
	if err != nil {
		return fmt.Errorf("restore total supply: %w", err)
	}
	ratio, err := calc.ParseUnits(s.MaxDistributeRatio)
	if err != nil {
		return fmt.Errorf("restore max ratio: %w", err)
	}

	shares := make(map[common.Address]*uint256.Int, len(s.Shares))
	sum := calc.Zero()
	for a, v := range s.Shares {
		n, err := calc.ParseUnits(v)
		if err != nil {
			return fmt.Errorf("restore shares of %s: %w", a.Hex(), err)
		}
		if sum, err = calc.Add(sum, n); err != nil {
			return err
		}
		shares[a] = n
	}
	if !sum.Eq(totalShares) {
		return fmt.Errorf("restore: shares sum %s != totalShares %s", sum.Dec(), totalShares.Dec())
	}

	allowances := make(map[common.Address]map[common.Address]*uint256.Int, len(s.Allowances))
	for owner, m := range s.Allowances {
		inner := make(map[common.Address]*uint256.Int, len(m))
		for spender, v := range m {
			n, err := calc.ParseUnits(v)
			if err != nil {
				return fmt.Errorf("restore allowance %s/%s: %w", owner.Hex(), spender.Hex(), err)
			}
			inner[spender] = n
		}
		allowances[owner] = inner
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalShares = totalShares
	l.totalSupply = totalSupply
	l.maxDistributeRatio = ratio
	l.lastDistributeTime = s.LastDistributeTime
	l.minDistributeInterval = s.MinDistributeInterval
	l.shares = shares
	l.allowances = allowances
	l.perms.Restore(s.Permissions)
	if len(s.Roles) > 0 {
		l.roles.Restore(s.Roles)
	}
	return nil
}
