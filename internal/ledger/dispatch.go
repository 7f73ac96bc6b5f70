package ledger

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/permission"
)

const adminABIJSON = `[
	{"type":"function","name":"issue","inputs":[
		{"name":"_tokenHolder","type":"address"},{"name":"_value","type":"uint256"},{"name":"_data","type":"bytes"}]},
	{"type":"function","name":"redeem","inputs":[
		{"name":"_value","type":"uint256"},{"name":"_data","type":"bytes"}]},
	{"type":"function","name":"redeemFrom","inputs":[
		{"name":"_tokenHolder","type":"address"},{"name":"_value","type":"uint256"},{"name":"_data","type":"bytes"}]},
	{"type":"function","name":"setPermission","inputs":[
		{"name":"addr","type":"address"},
		{"name":"permission","type":"tuple","components":[
			{"name":"sendAllowed","type":"bool"},{"name":"receiveAllowed","type":"bool"},{"name":"expiryTime","type":"uint64"}]}]},
	{"type":"function","name":"distributeInterests","inputs":[
		{"name":"_distributedInterest","type":"int256"},{"name":"_interestFromTime","type":"uint256"},{"name":"_interestToTime","type":"uint256"}]},
	{"type":"function","name":"controllerTransfer","inputs":[
		{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_value","type":"uint256"},
		{"name":"_data","type":"bytes"},{"name":"_operatorData","type":"bytes"}]},
	{"type":"function","name":"controllerRedeem","inputs":[
		{"name":"_tokenHolder","type":"address"},{"name":"_value","type":"uint256"},
		{"name":"_data","type":"bytes"},{"name":"_operatorData","type":"bytes"}]},
	{"type":"function","name":"setIssuer","inputs":[{"name":"_issuer","type":"address"}]},
	{"type":"function","name":"setController","inputs":[{"name":"_controller","type":"address"}]},
	{"type":"function","name":"setModerator","inputs":[{"name":"_moderator","type":"address"}]},
	{"type":"function","name":"setMinDistributeInterval","inputs":[{"name":"interval","type":"uint64"}]},
	{"type":"function","name":"setMaxDistributeRatio","inputs":[{"name":"ratio","type":"uint256"}]}
]`

// AdminABI describes the ledger operations reachable through encoded
// calldata, which is how the delayed admin gateway drives the ledger.
var AdminABI = mustParseABI(adminABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("ledger: parse admin ABI: %v", err))
	}
	return parsed
}

// PermissionArg is the tuple form of a permission in calldata.
type PermissionArg struct {
	SendAllowed    bool
	ReceiveAllowed bool
	ExpiryTime     uint64
}

// EncodeCall packs calldata for one of the AdminABI methods.
func EncodeCall(method string, args ...interface{}) ([]byte, error) {
	return AdminABI.Pack(method, args...)
}

// Selector returns the 4-byte selector of an AdminABI method.
func Selector(method string) ([4]byte, error) {
	var sel [4]byte
	m, ok := AdminABI.Methods[method]
	if !ok {
		return sel, fmt.Errorf("unknown ledger method %q", method)
	}
	copy(sel[:], m.ID)
	return sel, nil
}

// Call decodes calldata and runs the matching operation with caller as the
// principal.
func (l *Ledger) Call(caller common.Address, data []byte) error {
	if len(data) < 4 {
		return ErrUnknownSelector
	}
	method, err := AdminABI.MethodById(data[:4])
	if err != nil {
		return ErrUnknownSelector
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedCalldata, method.Name, err)
	}

	switch method.Name {
	case "issue":
		amount, err := calc.FromBig(args[1].(*big.Int))
		if err != nil {
			return err
		}
		return l.Issue(caller, args[0].(common.Address), amount, args[2].([]byte))
	case "redeem":
		amount, err := calc.FromBig(args[0].(*big.Int))
		if err != nil {
			return err
		}
		return l.Redeem(caller, amount, args[1].([]byte))
	case "redeemFrom":
		amount, err := calc.FromBig(args[1].(*big.Int))
		if err != nil {
			return err
		}
		return l.RedeemFrom(caller, args[0].(common.Address), amount, args[2].([]byte))
	case "setPermission":
		return l.perms.SetPermission(caller, args[0].(common.Address), permissionFromTuple(args[1]))
	case "distributeInterests":
		from, to := args[1].(*big.Int), args[2].(*big.Int)
		if !from.IsUint64() || !to.IsUint64() {
			return fmt.Errorf("%w: %s: interest range out of bounds", ErrMalformedCalldata, method.Name)
		}
		return l.DistributeInterests(caller, args[0].(*big.Int), from.Uint64(), to.Uint64())
	case "controllerTransfer":
		amount, err := calc.FromBig(args[2].(*big.Int))
		if err != nil {
			return err
		}
		return l.ControllerTransfer(caller, args[0].(common.Address), args[1].(common.Address), amount, args[3].([]byte), args[4].([]byte))
	case "controllerRedeem":
		amount, err := calc.FromBig(args[1].(*big.Int))
		if err != nil {
			return err
		}
		return l.ControllerRedeem(caller, args[0].(common.Address), amount, args[2].([]byte), args[3].([]byte))
	case "setIssuer":
		return l.SetIssuer(caller, args[0].(common.Address))
	case "setController":
		return l.SetController(caller, args[0].(common.Address))
	case "setModerator":
		return l.SetModerator(caller, args[0].(common.Address))
	case "setMinDistributeInterval":
		return l.SetMinDistributeInterval(caller, args[0].(uint64))
	case "setMaxDistributeRatio":
		ratio, err := calc.FromBig(args[0].(*big.Int))
		if err != nil {
			return err
		}
		return l.SetMaxDistributeRatio(caller, ratio)
	}
	return ErrUnknownSelector
}

// permissionFromTuple reads the anonymous struct abi builds for the tuple.
func permissionFromTuple(v interface{}) permission.Permission {
	rv := reflect.ValueOf(v)
	return permission.Permission{
		SendAllowed:    rv.FieldByName("SendAllowed").Bool(),
		ReceiveAllowed: rv.FieldByName("ReceiveAllowed").Bool(),
		Expiry:         rv.FieldByName("ExpiryTime").Uint(),
	}
}
