package common

import (
	"errors"
	"fmt"

	"github.com/mhartley/invoice-extract/constants"
)

// AppError carries a reason code alongside the message so the orchestrator
// and the HTTP surface can route on it without string matching.
type AppError struct {
	Reason  constants.Reason
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common sentinel errors.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTransient    = errors.New("transient failure") // retryable remote-call failure
	ErrNoMatch      = errors.New("no match")
)

// NewAppError builds a coded error.
func NewAppError(reason constants.Reason, message string, cause error) *AppError {
	return &AppError{Reason: reason, Message: message, Cause: cause}
}

// ReasonOf extracts the reason code from an error chain.
func ReasonOf(err error) (constants.Reason, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Reason, true
	}
	return "", false
}

// IsTransient reports whether the error should be retried before the tier
// gives up. Wrapped ErrTransient anywhere in the chain counts.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
