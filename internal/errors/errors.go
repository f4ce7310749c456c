// Package errors defines typed errors with categories for caller-facing reporting.
//
// Every failure the session engine surfaces carries one Kind so transports can
// decide how to present it (structured result, HTTP status, CLI exit) without
// parsing engine text. The underlying error is preserved for logging.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Configuration indicates a bad descriptor: unsupported engine or format, missing field.
	Configuration Kind = "configuration"
	// Binding indicates one source could not be attached or viewed.
	Binding Kind = "binding"
	// Syntax indicates a statement failed validation before execution.
	Syntax Kind = "syntax"
	// Runtime indicates a statement or analysis failed during execution.
	Runtime Kind = "runtime"
	// Resource indicates a path escape, timeout, or a limit being exceeded.
	Resource Kind = "resource"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf builds an E with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first E in err's chain, or Runtime when none is found.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Runtime
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *E
	return stderrors.As(err, &e) && e.Kind == kind
}

// Cause returns the innermost engine text for an E, falling back to err.Error().
// Callers use it to show the engine diagnostic without the kind/message prefix.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	var e *E
	if stderrors.As(err, &e) {
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Message
	}
	return err.Error()
}
