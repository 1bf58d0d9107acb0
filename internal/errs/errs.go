// Package errs defines the error kinds shared across embedcore and the
// classification used by the retry policy.
package errs

import (
	"errors"
	"fmt"
)

// Base error definitions. Wrap them with fmt.Errorf("...: %w", ErrX) so that
// KindOf can recover the kind through errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrValidationFailed = errors.New("validation failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrBackendFailure   = errors.New("backend failure")
	ErrNotFound         = errors.New("not found")
)

// Kind is the category of an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindInvalidArgument
	KindValidationFailed
	KindDecryptionFailed
	KindCircuitOpen
	KindBackendFailure
	KindNotFound
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindValidationFailed:
		return "validation_failed"
	case KindDecryptionFailed:
		return "decryption_failed"
	case KindCircuitOpen:
		return "circuit_open"
	case KindBackendFailure:
		return "backend_failure"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

var kindSentinels = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrValidationFailed, KindValidationFailed},
	{ErrDecryptionFailed, KindDecryptionFailed},
	{ErrCircuitOpen, KindCircuitOpen},
	{ErrBackendFailure, KindBackendFailure},
	{ErrNotFound, KindNotFound},
}

// KindOf returns the kind of err. A nil error has KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

// IsPermanent reports whether err is a caller error that must not be retried.
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindInvalidInput, KindInvalidArgument, KindValidationFailed, KindNotFound:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether the retry policy may attempt the call again.
// Circuit-open rejections and permanent errors are never retried; everything
// else, including unclassified errors, is treated as a transient backend failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return !IsPermanent(err)
}

// InvalidArgument returns an error of KindInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// InvalidInput returns an error of KindInvalidInput.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Backend marks err as a backend failure while keeping it inspectable with
// errors.Is / errors.As.
func Backend(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &backendError{msg: msg, cause: err}
}

type backendError struct {
	cause error
	msg   string
}

func (e *backendError) Error() string {
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *backendError) Unwrap() []error {
	return []error{ErrBackendFailure, e.cause}
}
