// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the upload pipeline can produce.
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingPayload
	KindPayloadTooLarge
	KindEmptyPayload
	KindUnsupportedArchiveType
	KindInvalidArchive
	KindMissingResults
	KindUnhandledEngine
	KindEvaluationTimeout
	KindStoragePersistence
)

var kindNames = map[Kind]string{
	KindUnknown:                "Unknown",
	KindMissingPayload:         "MissingPayload",
	KindPayloadTooLarge:        "PayloadTooLarge",
	KindEmptyPayload:           "EmptyPayload",
	KindUnsupportedArchiveType: "UnsupportedArchiveType",
	KindInvalidArchive:         "InvalidArchive",
	KindMissingResults:         "MissingResults",
	KindUnhandledEngine:        "UnhandledEngineException",
	KindEvaluationTimeout:      "EvaluationTimeout",
	KindStoragePersistence:     "StoragePersistenceFailure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Status maps a kind to the HTTP status returned to the client.
// Storage failures never reach a client; they map to 500 only for completeness.
func (k Kind) Status() int {
	switch k {
	case KindMissingPayload, KindEmptyPayload, KindUnsupportedArchiveType, KindInvalidArchive:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindEvaluationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline failure. Msg is what the client sees.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Status is the HTTP status for this error.
func (e *Error) Status() int { return e.Kind.Status() }

// NewError creates a classified error with a client-facing message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError classifies err, keeping it for errors.Is/As.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// AsError extracts a classified error. Anything unclassified becomes a
// generic 500 so internal details never reach the client.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUnknown, Msg: "Internal server error", Err: err}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
