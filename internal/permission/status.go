package permission

import (
	"github.com/ethereum/go-ethereum/common"
)

// Status is an EIP-1066 status code.
type Status byte

const (
	Success             Status = 0x01
	UpperLimit          Status = 0x06
	PermissionRequested Status = 0x13
	RevokedOrBanned     Status = 0x16
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case UpperLimit:
		return "upper_limit"
	case PermissionRequested:
		return "permission_requested"
	case RevokedOrBanned:
		return "revoked_or_banned"
	default:
		return "unknown"
	}
}

// Reason is the bytes32 application code returned next to a Status.
type Reason string

const (
	NoReason           Reason = ""
	CannotSend         Reason = "CANNOT_SEND"
	CannotReceive      Reason = "CANNOT_RECEIVE"
	SharesNotEnough    Reason = "SHARES_NOT_ENOUGH"
	AllowanceNotEnough Reason = "ALLOWANCE_NOT_ENOUGH"
	Forbidden          Reason = "FORBIDDEN"
)

// Bytes32 right-pads the reason with zeros, as formatBytes32String does.
func (r Reason) Bytes32() common.Hash {
	var h common.Hash
	copy(h[:], r)
	return h
}

// Result is the outcome of a transfer gate evaluation.
type Result struct {
	OK     bool   `json:"ok"`
	Status Status `json:"status"`
	Reason Reason `json:"reason"`
}

func Allow() Result {
	return Result{OK: true, Status: Success, Reason: NoReason}
}

func Deny(status Status, reason Reason) Result {
	return Result{Status: status, Reason: reason}
}
