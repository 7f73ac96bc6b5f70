package crosschain

import (
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ChainSelector routes a message to a ledger domain.
type ChainSelector uint64

const (
	SelectorMain ChainSelector = 16015286601757825753
	SelectorSide ChainSelector = 3478487238524512106
)

func (s ChainSelector) String() string {
	switch s {
	case SelectorMain:
		return "main"
	case SelectorSide:
		return "side"
	default:
		return strconv.FormatUint(uint64(s), 10)
	}
}

// Kind tells which custody model an endpoint uses.
type Kind string

const (
	KindMain Kind = "main"
	KindSide Kind = "side"
)

// Message is one cross-domain transfer intent. It has no nonce: the same
// transfer always encodes to the same payload.
type Message struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

// Rate is the main ledger amount one whole wrapped unit redeems for, as
// observed by the main domain at UpdatedAt (unix seconds).
type Rate struct {
	AmountPerUnit *uint256.Int `json:"amountPerUnit"`
	UpdatedAt     uint64       `json:"updatedAt"`
}

// Envelope carries a payload between messagers. Sender is the source
// messager and is what the receiving allow-list checks. Rate travels beside
// the payload so the payload stays a pure function of the transfer.
type Envelope struct {
	ID             string         `json:"id"`
	SourceSelector ChainSelector  `json:"sourceSelector"`
	DestSelector   ChainSelector  `json:"destSelector"`
	Sender         common.Address `json:"sender"`
	Receiver       common.Address `json:"receiver"`
	Payload        hexutil.Bytes  `json:"payload"`
	Rate           *Rate          `json:"rate,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Receipt describes how a delivered message was applied.
type Receipt struct {
	EnvelopeID string         `json:"envelopeId,omitempty"`
	From       common.Address `json:"from"`
	To         common.Address `json:"to"`
	Recipient  common.Address `json:"recipient"`
	Amount     string         `json:"amount"`
	Redirected bool           `json:"redirected"`
}

type Sent struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (Sent) EventName() string { return "CcSent" }

type Received struct {
	From       common.Address `json:"from"`
	To         common.Address `json:"to"`
	Recipient  common.Address `json:"recipient"`
	Amount     *uint256.Int   `json:"amount"`
	Redirected bool           `json:"redirected"`
}

func (Received) EventName() string { return "CcReceived" }

type RateUpdated struct {
	AmountPerUnit *uint256.Int `json:"amountPerUnit"`
	UpdatedAt     uint64       `json:"updatedAt"`
}

func (RateUpdated) EventName() string { return "PriceToSTBTUpdated" }

type ForbiddenSet struct {
	Account   common.Address `json:"account"`
	Forbidden bool           `json:"forbidden"`
}

func (ForbiddenSet) EventName() string { return "ForbiddenSet" }

type PeerSet struct {
	Selector ChainSelector  `json:"selector"`
	Peer     common.Address `json:"peer"`
	Enabled  bool           `json:"enabled"`
}

func (PeerSet) EventName() string { return "AllowedPeerSet" }

type SendEnabledSet struct {
	Enabled bool `json:"enabled"`
}

func (SendEnabledSet) EventName() string { return "SendEnabledSet" }
