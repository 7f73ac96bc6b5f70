// Package fault defines the error taxonomy shared by the ledger, the bridge
// endpoints and the admin gateway. Every rejection carries a Kind and a
// stable reason string that callers and the HTTP layer can match on.
package fault

import "errors"

type Kind int

const (
	KindUnknown Kind = iota
	AuthorizationDenied
	PermissionDenied
	InsufficientFunds
	InvalidArgument
	RateOrBoundViolation
	ReplayOrUnknownOperation
	Arithmetic
)

func (k Kind) String() string {
	switch k {
	case AuthorizationDenied:
		return "authorization_denied"
	case PermissionDenied:
		return "permission_denied"
	case InsufficientFunds:
		return "insufficient_funds"
	case InvalidArgument:
		return "invalid_argument"
	case RateOrBoundViolation:
		return "rate_or_bound_violation"
	case ReplayOrUnknownOperation:
		return "replay_or_unknown_operation"
	case Arithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// Error is a rejected operation. Sentinels are package-level *Error values and
// are compared with errors.Is.
type Error struct {
	Kind   Kind
	Reason string
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func (e *Error) Error() string {
	return e.Reason
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// ReasonOf returns the stable reason of the first *Error in err's chain, or
// an empty string.
func ReasonOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}
