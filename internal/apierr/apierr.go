// Package apierr defines the typed error taxonomy shared by the storage
// gateway, the LLM gateway, the orchestrator, and the MCP core (spec §7).
package apierr

import (
	"errors"
	"fmt"
)

// Code classifies an error into one of the taxonomy buckets from §7.
type Code string

const (
	CodeInvalidParams     Code = "invalid_params"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeTimeout           Code = "timeout"
	CodeDegraded          Code = "degraded"
	CodeUpstreamError     Code = "upstream_error"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeInternal          Code = "internal"
)

// Sentinel errors usable with errors.Is before wrapping with New/Wrap.
var (
	ErrInvalidParams      = errors.New("invalid params")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrTimeout            = errors.New("timeout")
	ErrDegraded           = errors.New("degraded")
	ErrUpstream           = errors.New("upstream error")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInternal           = errors.New("internal error")
)

var codeSentinel = map[Code]error{
	CodeInvalidParams:      ErrInvalidParams,
	CodeUnauthorized:       ErrUnauthorized,
	CodeForbidden:          ErrForbidden,
	CodeNotFound:           ErrNotFound,
	CodeConflict:           ErrConflict,
	CodeTimeout:            ErrTimeout,
	CodeDegraded:           ErrDegraded,
	CodeUpstreamError:      ErrUpstream,
	CodeStorageUnavailable: ErrStorageUnavailable,
	CodeInternal:           ErrInternal,
}

// Error is a typed, wrapped error carrying a taxonomy Code plus an
// optional machine-readable detail map (used to render JSON-RPC error
// data and MCP isError content blocks).
type Error struct {
	Code    Code
	Message string
	Detail  map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return codeSentinel[e.Code]
}

// New constructs a new Error of the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs a new Error of the given code wrapping cause.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetail attaches machine-readable detail fields and returns e for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error,
// defaulting to CodeInternal for unrecognized errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// JSONRPCCode maps a taxonomy Code to a JSON-RPC 2.0 error code (§6).
// CodeForbidden maps to the insufficient-scope code -32010; the other
// MCP-specific codes (-32002, -32020) are assigned directly by the
// mcpcore package rather than through this table, since they don't
// correspond 1:1 to a single taxonomy bucket.
func JSONRPCCode(c Code) int {
	switch c {
	case CodeInvalidParams:
		return -32602
	case CodeNotFound:
		return -32601
	case CodeInternal, CodeStorageUnavailable, CodeUpstreamError, CodeTimeout, CodeConflict, CodeDegraded:
		return -32603
	case CodeUnauthorized:
		return -32001
	case CodeForbidden:
		return -32010
	default:
		return -32603
	}
}

// HTTPStatus maps a taxonomy Code to an HTTP status for REST-shaped
// endpoints (job submission, discovery, health).
func HTTPStatus(c Code) int {
	switch c {
	case CodeInvalidParams:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodeTimeout:
		return 504
	case CodeUpstreamError:
		return 502
	case CodeStorageUnavailable:
		return 503
	case CodeDegraded:
		return 200
	default:
		return 500
	}
}
