package common

import "errors"

// Every mutating operation in the core surfaces one of these. They are
// recovered at the operation boundary; no partial state is ever committed.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrVersionConflict   = errors.New("terms version conflict, re-fetch and retry")
	ErrStaleState        = errors.New("deal state changed underneath you, re-fetch and retry")
	ErrIllegalOperation  = errors.New("operation not allowed for the resource's current state")
	ErrUnauthorized      = errors.New("you are not allowed to perform this action")
	ErrNotFound          = errors.New("not found")
	ErrUnmarshal         = errors.New("failed to unmarshal data")

	ErrRationale = errors.New("a rationale is required for a counter offer")
	ErrAmount    = errors.New("please provide a valid amount")
	ErrDealID    = errors.New("deal ID undefined")
)

// ErrKey maps a core error to the stable key written into error envelopes.
func ErrKey(err error) string {
	switch err {
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrVersionConflict, ErrStaleState:
		return "version_conflict"
	case ErrIllegalOperation:
		return "illegal_operation"
	case ErrUnauthorized:
		return "not_authorized"
	case ErrNotFound:
		return "not_found"
	default:
		return "validation"
	}
}
