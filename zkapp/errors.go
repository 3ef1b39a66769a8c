package zkapp

import (
	"errors"
	"fmt"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/state"
)

var (
	// ErrUnauthorized: the signer's identity is not the registered issuer.
	ErrUnauthorized = identity.ErrUnauthorized
	// ErrStale: committed state or network time moved since the transaction was built.
	ErrStale = state.ErrStale
	// ErrUninitialized: no initialize transaction has been committed yet.
	ErrUninitialized = state.ErrUninitialized

	ErrAlreadyInitialized = errors.New("contract already initialized")
	ErrOverflow           = errors.New("value exceeds its slot range")

	// ErrInvalidCertificate wraps every validity-predicate failure.
	ErrInvalidCertificate = errors.New("vaccination certificate is not valid")
	ErrNotEnoughDoses     = errors.New("fewer than two certified doses")
	ErrOutsideWindow      = errors.New("network time outside the validity window")
)

// RejectionError reports every failed assertion of one method call.
type RejectionError struct {
	Method circuits.Method
	Err    error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %v", e.Method, e.Err)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether rebuilding the transaction against fresh state may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStale) &&
		!errors.Is(err, ErrUnauthorized) &&
		!errors.Is(err, ErrOverflow) &&
		!errors.Is(err, ErrInvalidCertificate)
}
