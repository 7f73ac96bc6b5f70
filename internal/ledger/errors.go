package ledger

import "github.com/rebasefi/stbt-ledger/internal/fault"

var (
	ErrMintToZero          = fault.New(fault.InvalidArgument, "MINT_TO_THE_ZERO_ADDRESS")
	ErrBurnFromZero        = fault.New(fault.InvalidArgument, "BURN_FROM_THE_ZERO_ADDRESS")
	ErrTransferFromZero    = fault.New(fault.InvalidArgument, "TRANSFER_FROM_THE_ZERO_ADDRESS")
	ErrTransferToZero      = fault.New(fault.InvalidArgument, "TRANSFER_TO_THE_ZERO_ADDRESS")
	ErrApproveFromZero     = fault.New(fault.InvalidArgument, "APPROVE_FROM_THE_ZERO_ADDRESS")
	ErrApproveToZero       = fault.New(fault.InvalidArgument, "APPROVE_TO_THE_ZERO_ADDRESS")
	ErrBurnExceedsBalance  = fault.New(fault.InsufficientFunds, "BURN_AMOUNT_EXCEEDS_BALANCE")
	ErrTransferExceedsBal  = fault.New(fault.InsufficientFunds, "TRANSFER_AMOUNT_EXCEEDS_BALANCE")
	ErrTransferExceedsAllw = fault.New(fault.InsufficientFunds, "TRANSFER_AMOUNT_EXCEEDS_ALLOWANCE")
	ErrRedeemExceedsAllw   = fault.New(fault.InsufficientFunds, "REDEEM_AMOUNT_EXCEEDS_ALLOWANCE")
	ErrAllowanceBelowZero  = fault.New(fault.InsufficientFunds, "DECREASED_ALLOWANCE_BELOW_ZERO")
	ErrMaxRatioExceeded    = fault.New(fault.RateOrBoundViolation, "MAX_DISTRIBUTE_RATIO_EXCEEDED")
	ErrMinIntervalViolated = fault.New(fault.RateOrBoundViolation, "MIN_DISTRIBUTE_INTERVAL_VIOLATED")
	ErrEmptySupply         = fault.New(fault.Arithmetic, "ZERO_TOTAL_SUPPLY")
	ErrUnknownSelector     = fault.New(fault.ReplayOrUnknownOperation, "UNKNOWN_SELECTOR")
	ErrMalformedCalldata   = fault.New(fault.InvalidArgument, "MALFORMED_CALLDATA")
)
