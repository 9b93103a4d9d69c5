package airquality

import (
	"errors"
	"fmt"
)

// ErrorKind partitions failures so the presentation layer can pick an
// HTTP status without inspecting free text.
type ErrorKind string

const (
	KindInvalidQuery          ErrorKind = "invalid_query"
	KindUnknownSource         ErrorKind = "unknown_source"
	KindCapabilityUnsupported ErrorKind = "capability_unsupported"
	KindSourceUnavailable     ErrorKind = "source_unavailable"
	KindUnexpected            ErrorKind = "unexpected"
)

// Error is the structured error carried across the orchestration layer.
type Error struct {
	Kind   ErrorKind
	Source string // source key, when the failure is tied to one
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind, defaulting to unexpected for errors
// that did not originate in this layer.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// InvalidQueryf reports a malformed or contradictory query. Never retried.
func InvalidQueryf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidQuery, Msg: fmt.Sprintf(format, args...)}
}

// UnknownSourcef reports a catalog/registry miss.
func UnknownSourcef(key string) *Error {
	return &Error{Kind: KindUnknownSource, Source: key, Msg: "unknown data source"}
}

// Unsupportedf reports an adapter that lacks the requested operation.
func Unsupportedf(sourceKey, operation string) *Error {
	return &Error{Kind: KindCapabilityUnsupported, Source: sourceKey, Msg: "operation not supported: " + operation}
}

// Unavailablef wraps a network/auth/timeout failure from an upstream source.
func Unavailablef(sourceKey string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindSourceUnavailable, Source: sourceKey, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Unexpectedf wraps anything that escaped the taxonomy.
func Unexpectedf(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUnexpected, Msg: fmt.Sprintf(format, args...), Err: err}
}
