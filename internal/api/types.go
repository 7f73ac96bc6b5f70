package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
	"github.com/rebasefi/stbt-ledger/internal/permission"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type OKDTO struct {
	OK bool `json:"ok"`
}

type DomainDTO struct {
	Name     string         `json:"name"`
	Selector string         `json:"selector"`
	Ledger   common.Address `json:"ledger"`
	Bridge   common.Address `json:"bridge"`
	Messager common.Address `json:"messager"`
	Wrapped  bool           `json:"wrapped"`
	Timelock bool           `json:"timelock"`
}

// Quantities are base-10 integer strings in base units; Display fields
// render them with the token's decimals.

type LedgerStateDTO struct {
	Name                  string                    `json:"name"`
	Symbol                string                    `json:"symbol"`
	Decimals              uint8                     `json:"decimals"`
	TotalSupply           string                    `json:"totalSupply"`
	TotalSupplyDisplay    string                    `json:"totalSupplyDisplay"`
	TotalShares           string                    `json:"totalShares"`
	LastDistributeTime    uint64                    `json:"lastDistributeTime"`
	MinDistributeInterval uint64                    `json:"minDistributeInterval"`
	MaxDistributeRatio    string                    `json:"maxDistributeRatio"`
	RedemptionPolicy      string                    `json:"redemptionPolicy"`
	ImplementationVersion uint64                    `json:"implementationVersion"`
	Roles                 map[string]common.Address `json:"roles"`
}

type AccountDTO struct {
	Address        common.Address        `json:"address"`
	Balance        string                `json:"balance"`
	BalanceDisplay string                `json:"balanceDisplay"`
	Shares         string                `json:"shares"`
	Permission     permission.Permission `json:"permission"`
	Forbidden      bool                  `json:"forbidden"`
	WrappedBalance string                `json:"wrappedBalance,omitempty"`
}

type AllowanceDTO struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  string         `json:"amount"`
}

type TransferRequest struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Data   string `json:"data,omitempty"`
}

type ApproveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type IssueRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Data   string `json:"data,omitempty"`
}

type RedeemRequest struct {
	Holder string `json:"holder,omitempty"`
	Amount string `json:"amount"`
	Data   string `json:"data,omitempty"`
}

type ControllerRequest struct {
	From         string `json:"from"`
	To           string `json:"to,omitempty"`
	Amount       string `json:"amount"`
	Data         string `json:"data,omitempty"`
	OperatorData string `json:"operatorData,omitempty"`
}

type DistributeRequest struct {
	// Delta is signed: positive accrues interest, negative writes it down.
	Delta      string `json:"delta"`
	RangeStart uint64 `json:"rangeStart"`
	RangeEnd   uint64 `json:"rangeEnd"`
}

type CanTransferRequest struct {
	Spender string `json:"spender,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
}

type CanTransferDTO struct {
	OK     bool        `json:"ok"`
	Status string      `json:"status"`
	Code   string      `json:"code"`
	Reason common.Hash `json:"reason"`
	Text   string      `json:"reasonText"`
}

type RoleRequest struct {
	Role    string `json:"role"`
	Address string `json:"address"`
}

type LimitsRequest struct {
	MinDistributeInterval *uint64 `json:"minDistributeInterval,omitempty"`
	// MaxDistributeRatio is a plain fraction such as "0.1".
	MaxDistributeRatio string `json:"maxDistributeRatio,omitempty"`
}

type UpgradeDTO struct {
	Name    string `json:"name"`
	Version uint64 `json:"version"`
}

type PermissionRequest struct {
	SendAllowed    bool   `json:"sendAllowed"`
	ReceiveAllowed bool   `json:"receiveAllowed"`
	ExpiryTime     uint64 `json:"expiryTime"`
}

type DocumentRequest struct {
	URI          string `json:"uri"`
	DocumentHash string `json:"documentHash"`
}

type WrapRequest struct {
	Amount string `json:"amount"`
}

type WrapDTO struct {
	Amount string `json:"amount"`
	Units  string `json:"units"`
}

type WrappedStateDTO struct {
	Address       common.Address `json:"address"`
	Name          string         `json:"name"`
	Symbol        string         `json:"symbol"`
	TotalSupply   string         `json:"totalSupply"`
	AmountPerUnit string         `json:"amountPerUnit"`
}

type BridgeStateDTO struct {
	Endpoint    common.Address   `json:"endpoint"`
	Kind        string           `json:"kind"`
	Selector    string           `json:"selector"`
	Messager    common.Address   `json:"messager"`
	SendEnabled bool             `json:"sendEnabled"`
	Fallback    common.Address   `json:"fallback"`
	Forbidden   []common.Address `json:"forbidden"`
	// PriceToSTBT is the last main amount per wrapped unit this endpoint
	// received, empty until the first delivery carrying one.
	PriceToSTBT    string `json:"priceToStbt,omitempty"`
	PriceUpdatedAt uint64 `json:"priceUpdatedAt,omitempty"`
}

type BridgeSendRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	// Destination is "main" or "side"; defaults to the other domain.
	Destination string `json:"destination,omitempty"`
	Peer        string `json:"peer,omitempty"`
}

type BridgeReceiveRequest struct {
	Payload hexutil.Bytes    `json:"payload"`
	Rate    *crosschain.Rate `json:"rate,omitempty"`
}

type SendDataDTO struct {
	Payload hexutil.Bytes `json:"payload"`
}

type ForbiddenRequest struct {
	Forbidden bool `json:"forbidden"`
}

type PeerRequest struct {
	Selector string `json:"selector"`
	Peer     string `json:"peer"`
	Enabled  bool   `json:"enabled"`
}

type SendEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type FallbackRequest struct {
	Account string `json:"account"`
}

type ScheduleRequest struct {
	Target      string        `json:"target,omitempty"`
	Data        hexutil.Bytes `json:"data"`
	Predecessor string        `json:"predecessor,omitempty"`
	Salt        string        `json:"salt,omitempty"`
	// DelaySeconds is raised to the selector's minimum.
	DelaySeconds uint64 `json:"delaySeconds"`
}

type CancelRequest struct {
	ID string `json:"id"`
}

type OperationDTO struct {
	ID        common.Hash `json:"id"`
	Timestamp uint64      `json:"timestamp"`
	Pending   bool        `json:"pending"`
	Ready     bool        `json:"ready"`
	Done      bool        `json:"done"`
}
