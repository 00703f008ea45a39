package domain

import (
	"errors"
	"fmt"
)

// ErrInsufficientSize means the computed order quantity fell below the
// exchange minimum after rounding. Not an alarm, just no trade this cycle.
var ErrInsufficientSize = errors.New("order size below exchange minimum")

// ErrNoPosition is returned by gateways when the exchange reports no open
// position for the requested symbol.
var ErrNoPosition = errors.New("no open position")

// TransientError wraps a retryable exchange failure: network timeout,
// rate limit, 5xx. The lifecycle manager retries these with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient exchange error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil if err is nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is a retryable exchange failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// FatalConfigError marks a configuration problem that requires operator
// intervention: the owning bot is deactivated, the tick aborted, no retries.
type FatalConfigError struct {
	Reason string
}

func (e *FatalConfigError) Error() string {
	return "fatal configuration error: " + e.Reason
}

// IsFatalConfig reports whether err requires operator intervention.
func IsFatalConfig(err error) bool {
	var fe *FatalConfigError
	return errors.As(err, &fe)
}
