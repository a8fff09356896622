// Package stage models the outcome of one pipeline step.
//
// Every step of a run ends in exactly one of three states: it produced a
// value, it found nothing (an expected, non-fatal miss that still ends the
// run), or it failed with an error. Callers switch on Status instead of
// inspecting ad hoc nil values.
package stage

import "fmt"

// Status classifies a step result.
type Status int

const (
	// StatusOK means Value is populated.
	StatusOK Status = iota
	// StatusNotFound means the step ran but the thing it looks for is absent.
	StatusNotFound
	// StatusFailed means the step could not run to completion; Err is set.
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result carries a step's value or the reason it has none.
type Result[T any] struct {
	Value  T
	Status Status
	Reason string
	Err    error
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOK}
}

// NotFound reports an expected miss.
func NotFound[T any](reason string) Result[T] {
	return Result[T]{Status: StatusNotFound, Reason: reason}
}

// Failed reports an error that aborts the run.
func Failed[T any](err error) Result[T] {
	reason := "unknown failure"
	if err != nil {
		reason = err.Error()
	}
	return Result[T]{Status: StatusFailed, Reason: reason, Err: err}
}

// Ok reports whether the result carries a value.
func (r Result[T]) Ok() bool {
	return r.Status == StatusOK
}
