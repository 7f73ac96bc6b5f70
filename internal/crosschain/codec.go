package crosschain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var messageArgs = func() abi.Arguments {
	address, _ := abi.NewType("address", "", nil)
	amount, _ := abi.NewType("uint256", "", nil)
	return abi.Arguments{
		{Name: "from", Type: address},
		{Name: "to", Type: address},
		{Name: "amount", Type: amount},
	}
}()

// EncodeMessage is abi.encode(from, to, amount).
func EncodeMessage(from, to common.Address, amount *uint256.Int) ([]byte, error) {
	return messageArgs.Pack(from, to, amount.ToBig())
}

func DecodeMessage(payload []byte) (Message, error) {
	vals, err := messageArgs.Unpack(payload)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(vals) != 3 {
		return Message{}, ErrMalformedMessage
	}
	from, ok1 := vals[0].(common.Address)
	to, ok2 := vals[1].(common.Address)
	raw, ok3 := vals[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return Message{}, ErrMalformedMessage
	}
	amount, overflow := uint256.FromBig(raw)
	if overflow {
		return Message{}, ErrMalformedMessage
	}
	return Message{From: from, To: to, Amount: amount}, nil
}
