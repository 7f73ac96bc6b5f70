package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

// DistributeInterests rebases every balance by moving totalSupply by delta.
// Issuer only. The ratio bound is checked before the interval.
func (l *Ledger) DistributeInterests(caller common.Address, delta *big.Int, rangeStart, rangeEnd uint64) error {
	if err := l.roles.Require(roles.Issuer, caller); err != nil {
		return err
	}
	abs, negative, err := calc.Abs(delta)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := calc.ValidateDistribution(abs, l.totalSupply, l.maxDistributeRatio)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMaxRatioExceeded
	}
	now := l.Now()
	if !calc.IntervalElapsed(l.lastDistributeTime, now, l.minDistributeInterval) {
		return ErrMinIntervalViolated
	}

	newSupply, err := calc.Add(l.totalSupply, abs)
	if negative {
		newSupply, err = calc.Sub(l.totalSupply, abs)
	}
	if err != nil {
		return err
	}
	l.totalSupply = newSupply
	l.lastDistributeTime = now

	var b events.Batch
	b.Add(InterestsDistributed{
		Interest:       new(big.Int).Set(delta),
		NewTotalSupply: newSupply.Clone(),
		RangeStart:     rangeStart,
		RangeEnd:       rangeEnd,
	})
	l.commit(&b)

	l.logger.Infow("Interests distributed",
		"delta", delta.String(),
		"totalSupply", newSupply.Dec(),
		"totalShares", l.totalShares.Dec(),
		"rangeStart", rangeStart,
		"rangeEnd", rangeEnd,
	)
	return nil
}
