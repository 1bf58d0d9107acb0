// Package result provides the tagged outcome returned at operation
// boundaries instead of mixing booleans and errors.
package result

import (
	"encoding/json"
	"fmt"

	"github.com/hrygo/embedcore/internal/errs"
)

// Status is the discriminant of an Outcome.
type Status int

const (
	StatusSuccess Status = iota
	// StatusRejected means the operation declined the input (e.g. a degenerate
	// vector) without any backend error.
	StatusRejected
	StatusFailed
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form produced by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "success":
		*s = StatusSuccess
	case "rejected":
		*s = StatusRejected
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown status %q", name)
	}
	return nil
}

// Outcome is one of Success(Value), Rejected(Reason) or Failed(Err).
type Outcome[T any] struct {
	Value  T
	Err    error
	Reason string
	Status Status
}

// Succeeded returns a successful outcome carrying v.
func Succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{Status: StatusSuccess, Value: v}
}

// Rejected returns a rejected outcome with a human readable reason.
func Rejected[T any](reason string) Outcome[T] {
	return Outcome[T]{Status: StatusRejected, Reason: reason}
}

// Failed returns a failed outcome wrapping err.
func Failed[T any](err error) Outcome[T] {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return Outcome[T]{Status: StatusFailed, Err: err, Reason: reason}
}

// OK reports whether the outcome is a success.
func (o Outcome[T]) OK() bool {
	return o.Status == StatusSuccess
}

// Kind returns the error kind of a failed outcome. Rejections report
// KindValidationFailed; successes report KindUnknown.
func (o Outcome[T]) Kind() errs.Kind {
	switch o.Status {
	case StatusRejected:
		return errs.KindValidationFailed
	case StatusFailed:
		return errs.KindOf(o.Err)
	default:
		return errs.KindUnknown
	}
}
