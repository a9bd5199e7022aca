package engine

import "errors"

// Business-rule sentinels. Operations wrap these with fmt.Errorf("...: %w")
// and callers discriminate with errors.Is. A business rejection is final
// and leaves no partial state; anything else is an infrastructure failure.
var (
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrState             = errors.New("invalid state for operation")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrProofVerification = errors.New("proof verification failed")
)

// IsBusinessError reports whether err is a typed business rejection.
// The ingestion layer acks these instead of requesting redelivery.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrProofVerification)
}
