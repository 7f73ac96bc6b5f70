package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

type Transfer struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"value"`
}

func (Transfer) EventName() string { return "Transfer" }

type TransferShares struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Shares *uint256.Int   `json:"sharesValue"`
}

func (TransferShares) EventName() string { return "TransferShares" }

type Approval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"value"`
}

func (Approval) EventName() string { return "Approval" }

type Issued struct {
	Operator common.Address `json:"operator"`
	To       common.Address `json:"to"`
	Amount   *uint256.Int   `json:"value"`
	Data     hexutil.Bytes  `json:"data"`
}

func (Issued) EventName() string { return "Issued" }

type Redeemed struct {
	Operator common.Address `json:"operator"`
	From     common.Address `json:"from"`
	Amount   *uint256.Int   `json:"value"`
	Data     hexutil.Bytes  `json:"data"`
}

func (Redeemed) EventName() string { return "Redeemed" }

// SharesBurnt reports the holder-facing value of the burnt shares before
// and after the burn was applied to totalShares.
type SharesBurnt struct {
	Account          common.Address `json:"account"`
	PreRebaseAmount  *uint256.Int   `json:"preRebaseTokenAmount"`
	PostRebaseAmount *uint256.Int   `json:"postRebaseTokenAmount"`
	Shares           *uint256.Int   `json:"sharesAmount"`
}

func (SharesBurnt) EventName() string { return "SharesBurnt" }

type ControllerTransfer struct {
	Controller   common.Address `json:"controller"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Amount       *uint256.Int   `json:"value"`
	Data         hexutil.Bytes  `json:"data"`
	OperatorData hexutil.Bytes  `json:"operatorData"`
}

func (ControllerTransfer) EventName() string { return "ControllerTransfer" }

type ControllerRedemption struct {
	Controller   common.Address `json:"controller"`
	TokenHolder  common.Address `json:"tokenHolder"`
	Amount       *uint256.Int   `json:"value"`
	Data         hexutil.Bytes  `json:"data"`
	OperatorData hexutil.Bytes  `json:"operatorData"`
}

func (ControllerRedemption) EventName() string { return "ControllerRedemption" }

type InterestsDistributed struct {
	Interest       *big.Int     `json:"interest"`
	NewTotalSupply *uint256.Int `json:"newTotalSupply"`
	RangeStart     uint64       `json:"interestFromTime"`
	RangeEnd       uint64       `json:"interestToTime"`
}

func (InterestsDistributed) EventName() string { return "InterestsDistributed" }

type DistributionLimitsChanged struct {
	MinDistributeInterval uint64       `json:"minDistributeInterval"`
	MaxDistributeRatio    *uint256.Int `json:"maxDistributeRatio"`
}

func (DistributionLimitsChanged) EventName() string { return "DistributionLimitsChanged" }
