// Package progress defines the progress-reporting contract consumed by the
// acquisition pipeline.
//
// A Reporter is invoked synchronously at fixed checkpoints: Start when a
// phase begins (with the total number of steps or bytes, 0 if unknown),
// Update as it advances and End when it completes. Reporters carry no
// concurrency semantics. Returning an error from any method aborts the
// operation in progress; callers wrap such errors with Abort so that layers
// which otherwise swallow failures (distribution probing) can tell them apart
// and let them propagate.
package progress

import (
	"errors"
	"fmt"
)

// Reporter receives progress checkpoints.
type Reporter interface {
	Start(text string, total int64) error
	Update(n int64) error
	End(n int64) error
}

// AbortError wraps an error returned by a Reporter.
type AbortError struct {
	Err error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted by progress reporter: %v", e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// IsAborted reports whether err originated from a Reporter.
func IsAborted(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}

func abort(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return err
	}
	return &AbortError{Err: err}
}

// Start calls r.Start, wrapping any error as an AbortError. A nil r is a no-op.
func Start(r Reporter, text string, total int64) error {
	if r == nil {
		return nil
	}
	return abort(r.Start(text, total))
}

// Update calls r.Update, wrapping any error as an AbortError.
func Update(r Reporter, n int64) error {
	if r == nil {
		return nil
	}
	return abort(r.Update(n))
}

// End calls r.End, wrapping any error as an AbortError.
func End(r Reporter, n int64) error {
	if r == nil {
		return nil
	}
	return abort(r.End(n))
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Start(string, int64) error { return nil }
func (Nop) Update(int64) error        { return nil }
func (Nop) End(int64) error           { return nil }
