// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package status implements the closed set of result codes returned by
// every public operation in the framework.
package status

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code represents the collection of outcomes that a framework operation
// may return. The enum ordering carries no significance; callers should
// compare against the named constants, never against raw integers.
type Code int

const (
	// OK indicates the operation completed successfully.
	OK Code = iota

	// Resource indicates an allocation or other resource failure.
	Resource

	// Unknown indicates a referenced plug-in or symbol identifier is not
	// known to the context.
	Unknown

	// IO indicates a read failure while loading a descriptor.
	IO

	// Malformed indicates a descriptor failed to parse.
	Malformed

	// Conflict indicates a duplicate identifier or symbol name.
	Conflict

	// Dependency indicates an import could not be satisfied.
	Dependency

	// Runtime indicates a plug-in's create/start/stop/destroy function
	// failed or a runtime library could not be opened.
	Runtime

	// Deadlock indicates a re-entrant state transition was refused.
	Deadlock
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case Resource:
		return "resource"
	case Unknown:
		return "unknown"
	case IO:
		return "io"
	case Malformed:
		return "malformed"
	case Conflict:
		return "conflict"
	case Dependency:
		return "dependency"
	case Runtime:
		return "runtime"
	case Deadlock:
		return "deadlock"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is the error type returned by every public operation in the
// framework. It carries the closed Code plus a human-readable message and,
// optionally, the lower-layer cause that produced it.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("cpluff error (code: %s): %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("cpluff error (code: %s): %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped lower-layer cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause exposes the wrapped lower-layer cause for
// github.com/pkg/errors.Cause traversal.
func (e *Error) Cause() error {
	return e.cause
}

// Newf builds a new Error with the given code and a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a new Error with the given code, attributing a lower-layer
// cause that will still be visible to logging via errors.Cause/errors.Unwrap
// even though the code returned to the caller reflects the higher-level
// failure, per the propagation rule: a failure during resolution propagates
// as Dependency even when the root cause was Resource in an allocator call.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   errors.Wrap(cause, fmt.Sprintf(format, args...)),
	}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Cause returns the innermost wrapped cause, or err itself if it wraps
// nothing, mirroring github.com/pkg/errors.Cause.
func Cause(err error) error {
	return errors.Cause(err)
}

// Severity is the log severity used by the logger observer channel.
type Severity int

const (
	// SeverityDebug is diagnostic chatter, below Info.
	SeverityDebug Severity = iota
	// SeverityInfo is routine informational logging.
	SeverityInfo
	// SeverityWarning marks descriptor oddities and other recoverable
	// anomalies.
	SeverityWarning
	// SeverityError marks a non-trivial failure, emitted before the
	// triggering operation returns its status to its caller.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}
