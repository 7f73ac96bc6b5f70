package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

// ControllerTransfer forces a transfer, bypassing permissions and the guard.
func (l *Ledger) ControllerTransfer(caller, from, to common.Address, amount *uint256.Int, data, operatorData []byte) error {
	if err := l.roles.Require(roles.Controller, caller); err != nil {
		return err
	}
	if from == (common.Address{}) {
		return ErrTransferFromZero
	}
	if to == (common.Address{}) {
		return ErrTransferToZero
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var b events.Batch
	if err := l.ungatedTransfer(from, to, amount, &b); err != nil {
		return err
	}
	b.Add(ControllerTransfer{
		Controller:   caller,
		From:         from,
		To:           to,
		Amount:       amount.Clone(),
		Data:         data,
		OperatorData: operatorData,
	})
	l.commit(&b)

	l.logger.Infow("Controller transfer",
		"controller", caller.Hex(),
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", amount.Dec(),
	)
	return nil
}

// ControllerRedeem forces a burn, bypassing permissions.
func (l *Ledger) ControllerRedeem(caller, holder common.Address, amount *uint256.Int, data, operatorData []byte) error {
	if err := l.roles.Require(roles.Controller, caller); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var b events.Batch
	if err := l.burn(holder, amount, &b); err != nil {
		return err
	}
	b.Add(ControllerRedemption{
		Controller:   caller,
		TokenHolder:  holder,
		Amount:       amount.Clone(),
		Data:         data,
		OperatorData: operatorData,
	})
	l.commit(&b)

	l.logger.Infow("Controller redemption",
		"controller", caller.Hex(),
		"holder", holder.Hex(),
		"amount", amount.Dec(),
	)
	return nil
}
