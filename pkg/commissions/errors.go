package commissions

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorKind classifies every error the client returns.
type ErrorKind int

const (
	// KindUnknown is reported for errors that did not originate in this package.
	KindUnknown ErrorKind = iota

	// KindConnection is a network or timeout failure. It is the only retried kind.
	KindConnection

	// KindNotModified signals an HTTP 304. Callers treat it as a no-op.
	KindNotModified

	// KindBadRequest is an application error with a structured vendor payload.
	KindBadRequest

	// KindResponse is a contract violation: unexpected status, shape or content type.
	KindResponse

	// KindAlreadyExists is returned when creating a resource that already exists.
	KindAlreadyExists

	// KindMissingField is returned when the server reports a missing required field.
	KindMissingField

	// KindNotFound is returned when a lookup yields nothing.
	KindNotFound

	// KindValidation is a client-side precondition failure raised before any request.
	KindValidation

	// KindDecode is a wire value that does not fit the declared field kind.
	KindDecode
)

var kindNames = map[ErrorKind]string{
	KindUnknown:       "unknown",
	KindConnection:    "connection error",
	KindNotModified:   "not modified",
	KindBadRequest:    "bad request",
	KindResponse:      "unexpected response",
	KindAlreadyExists: "already exists",
	KindMissingField:  "missing field",
	KindNotFound:      "not found",
	KindValidation:    "validation error",
	KindDecode:        "decode error",
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the single error type returned across the client boundary.
type Error struct {
	Kind ErrorKind
	// Op describes the operation, e.g. "create participant".
	Op         string
	StatusCode int
	// Messages are the vendor error messages extracted from Payload.
	Messages []string
	// Payload is the decoded JSON error body of a bad request.
	Payload map[string]any
	// Body is the raw body of an unexpected response.
	Body string
	// Field and Value locate a decode or validation failure.
	Field string
	Value any
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	if e.Op != "" {
		builder.WriteString(e.Op)
		builder.WriteString(": ")
	}

	builder.WriteString(e.Kind.String())

	if e.StatusCode != 0 {
		fmt.Fprintf(&builder, " (status %d)", e.StatusCode)
	}

	if e.Field != "" {
		fmt.Fprintf(&builder, " on field %q", e.Field)
	}

	if len(e.Messages) > 0 {
		builder.WriteString(": ")
		builder.WriteString(strings.Join(e.Messages, "; "))
	} else if e.Body != "" {
		builder.WriteString(": ")
		builder.WriteString(truncate(e.Body, maxBodyInError))
	}

	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. This lets the
// kind sentinels below be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && t.Op == "" && t.StatusCode == 0
}

// HasCode reports whether any vendor message carries the given code. Vendor
// messages lead with their code, as in "TCMP_35004:E: ...", and the code must
// match that leading token exactly.
func (e *Error) HasCode(code string) bool {
	for _, message := range e.Messages {
		if VendorCode(message) == code {
			return true
		}
	}

	return false
}

// VendorCode returns the leading code of a vendor message, or "".
func VendorCode(message string) string {
	token, _, found := strings.Cut(strings.TrimSpace(message), ":")
	if !found {
		return ""
	}

	return strings.TrimSpace(token)
}

// Kind sentinels, usable with errors.Is.
var (
	ErrConnection    = &Error{Kind: KindConnection}
	ErrNotModified   = &Error{Kind: KindNotModified}
	ErrBadRequest    = &Error{Kind: KindBadRequest}
	ErrResponse      = &Error{Kind: KindResponse}
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists}
	ErrMissingField  = &Error{Kind: KindMissingField}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrDecode        = &Error{Kind: KindDecode}
)

// Static errors for err113 compliance.
var (
	ErrConfigRequired      = errors.New("config is required")
	ErrBaseURLRequired     = errors.New("base URL is required")
	ErrNoMoreItems         = errors.New("no more items")
	ErrUnknownResourceType = errors.New("unknown resource type")
	ErrUnknownField        = errors.New("unknown field")
	ErrIdentifierReadOnly  = errors.New("identifier is assigned by the server")
	ErrIdentifierRequired  = errors.New("resource has no identifier")
	ErrInvalidPageSize     = errors.New("page size out of range")
	ErrInvalidKind         = errors.New("value does not match field kind")
	ErrAmbiguousElement    = errors.New("sequence field has no element type")
	ErrNoLogicalKeys       = errors.New("resource type declares no logical keys")
	ErrMissingLogicalKey   = errors.New("logical key value is missing")
	ErrInvalidRunMode      = errors.New("invalid run mode selection")
	ErrMissingJobParameter = errors.New("missing job parameter")
	ErrCacheDisabled       = errors.New("cache disabled")
)

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// IsConnection checks if the error is a connection error.
func IsConnection(err error) bool {
	return KindOf(err) == KindConnection
}

// IsNotModified checks if the error is the not-modified signal.
func IsNotModified(err error) bool {
	return KindOf(err) == KindNotModified
}

// IsAlreadyExists checks if the error is an already-exists error.
func IsAlreadyExists(err error) bool {
	return KindOf(err) == KindAlreadyExists
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// NewValidationError builds a client-side validation error.
func NewValidationError(op, field string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Err: err}
}

const maxBodyInError = 512

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n] + "..."
}
