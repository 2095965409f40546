// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dbgerr holds the debugger's error taxonomy. Per spec.md §7,
// errors are never thrown across the API boundary as exceptions: every
// fallible Controller operation returns a bool or a StopReason, and
// *Error (when non-nil) additionally carries the long text and short
// tag that the UI would show in the console and status bar,
// respectively.
package dbgerr

import "fmt"

// Kind classifies an Error for internal-vs-user-visible handling.
type Kind int

const (
	// LaunchFailure: the back end could not create or attach the process.
	LaunchFailure Kind = iota
	// InvalidStatus: an API call was made in the wrong state (e.g. Go
	// while not paused). Never surfaced as an event except via
	// InvalidOperation.
	InvalidStatus
	// InternalErrorKind: a stepping loop could not find containing
	// functions, or an adapter returned a malformed response.
	// Surfaced as an InternalError event.
	InternalErrorKind
	// IOErrorKind: read_memory/write_memory returned short.
	IOErrorKind
)

func (k Kind) String() string {
	switch k {
	case LaunchFailure:
		return "LaunchFailure"
	case InvalidStatus:
		return "InvalidStatus"
	case InternalErrorKind:
		return "InternalError"
	case IOErrorKind:
		return "IOError"
	default:
		return "Unknown"
	}
}

// Error is a session-fatal or operation-fatal debugger error. It
// carries both a long, human-readable text (shown in the console) and
// a short tag (shown in the status bar).
type Error struct {
	Kind      Kind
	Short     string
	Long      string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Short, e.Long, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Short, e.Long)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with the given kind, short tag and long text.
func New(kind Kind, short, long string) *Error {
	return &Error{Kind: kind, Short: short, Long: long}
}

// Wrap builds an Error that chains an underlying cause.
func Wrap(kind Kind, short, long string, cause error) *Error {
	return &Error{Kind: kind, Short: short, Long: long, Cause: cause}
}

// LaunchFailed builds a LaunchFailure error for a back end that could
// not create or attach the process.
func LaunchFailed(adapterType string, cause error) *Error {
	return Wrap(LaunchFailure, "launch failed",
		fmt.Sprintf("adapter %q failed to launch or attach the target", adapterType), cause)
}

// InvalidOp builds an InvalidStatus error for an API call made in the
// wrong state.
func InvalidOp(op string) *Error {
	return New(InvalidStatus, "invalid operation",
		fmt.Sprintf("%s called while the target is not connected and paused", op))
}

// Internal builds an InternalErrorKind error, e.g. a stepping loop that
// could not resolve containing functions or exhausted its step cap.
func Internal(detail string) *Error {
	return New(InternalErrorKind, "internal error", detail)
}

// IOFailed builds an IOErrorKind error for a short memory read/write.
func IOFailed(op string, addr uint64, want, got int) *Error {
	return New(IOErrorKind, "i/o error",
		fmt.Sprintf("%s at %#x: wanted %d bytes, got %d", op, addr, want, got))
}
