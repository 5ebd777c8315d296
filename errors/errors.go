// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import (
	stderr "errors"
	"fmt"
	"log/slog"
)

type (
	// Error represents a structured telemetry-path error.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		PropertyName  string
		PropertyValue any
	}

	// Kind defines the type of error being returned.
	Kind int
)

// The following are the defined error kinds.
const (
	// MalformedPayload indicates bytes that are not well-formed JSON.
	MalformedPayload Kind = iota

	// UnrecognizedShape indicates a JSON document lacking the telemetry
	// markers. It is reported, never fatal.
	UnrecognizedShape

	// TransportError indicates a broker connection, authentication or
	// timeout failure.
	TransportError

	// PreconditionViolation indicates a state transition invoked with an
	// out-of-range argument. The transition is rejected as a no-op.
	PreconditionViolation

	ConfigurationInvalid
	ArgumentInvalid
	StateInvalid
)

var kindNames = map[Kind]string{
	MalformedPayload:      "malformed payload",
	UnrecognizedShape:     "unrecognized shape",
	TransportError:        "transport error",
	PreconditionViolation: "precondition violation",
	ConfigurationInvalid:  "configuration invalid",
	ArgumentInvalid:       "argument invalid",
	StateInvalid:          "state invalid",
}

// String returns the human-readable kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error returns the error as a string.
func (e *Error) Error() string {
	if e.NestedError != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.NestedError)
	}
	return e.Message
}

// Unwrap exposes the nested error to the standard error helpers.
func (e *Error) Unwrap() error {
	return e.NestedError
}

// Attrs returns additional error properties for structured logging.
func (e *Error) Attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("kind", e.Kind.String())}
	if e.PropertyName != "" {
		attrs = append(attrs,
			slog.String("property_name", e.PropertyName),
			slog.Any("property_value", e.PropertyValue),
		)
	}
	if e.NestedError != nil {
		attrs = append(attrs, slog.String("nested_error", e.NestedError.Error()))
	}
	return attrs
}

// IsKind reports whether any error in err's chain is an *Error of the given
// kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderr.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
