package service

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrCallNotPending      = errors.New("call not pending")
	ErrNoEligibleResponder = errors.New("no eligible responder")
	ErrOccurrenceCancelled = errors.New("occurrence cancelled")
	ErrDispatcherStopped   = errors.New("dispatcher stopped")
)

// ErrorCode returns the wire code for err, or INTERNAL_ERROR.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidRequest):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrCallNotPending):
		return "CALL_NOT_PENDING"
	case errors.Is(err, ErrNoEligibleResponder):
		return "NO_ELIGIBLE_RESPONDER"
	case errors.Is(err, ErrOccurrenceCancelled):
		return "OCCURRENCE_CANCELLED"
	case errors.Is(err, ErrDispatcherStopped):
		return "UNAVAILABLE"
	}
	return "INTERNAL_ERROR"
}
