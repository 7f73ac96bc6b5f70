package crosschain

import "github.com/rebasefi/stbt-ledger/internal/fault"

var (
	ErrSendDisabled      = fault.New(fault.PermissionDenied, "SEND_DISABLED")
	ErrSenderForbidden   = fault.New(fault.PermissionDenied, "SENDER_FORBIDDEN")
	ErrReceiverForbidden = fault.New(fault.PermissionDenied, "RECEIVER_FORBIDDEN")
	ErrForbidden         = fault.New(fault.PermissionDenied, "FORBIDDEN")
	ErrMalformedMessage  = fault.New(fault.InvalidArgument, "MALFORMED_MESSAGE")
	ErrZeroAmount        = fault.New(fault.InvalidArgument, "ZERO_AMOUNT")
	ErrZeroSender        = fault.New(fault.InvalidArgument, "CC_SEND_FROM_THE_ZERO_ADDRESS")
	ErrZeroReceiver      = fault.New(fault.InvalidArgument, "CC_SEND_TO_THE_ZERO_ADDRESS")
	ErrUnknownPeer       = fault.New(fault.ReplayOrUnknownOperation, "UNKNOWN_PEER")
	ErrWrongDestination  = fault.New(fault.ReplayOrUnknownOperation, "WRONG_DESTINATION")
)
