// Package errors implements the relayer's business error taxonomy: a
// typed error carrying an HTTP status and machine-readable code so
// handlers never leak Go error strings or stack traces to clients.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"google.golang.org/grpc/codes"
)

// Error is a business error with an HTTP status and optional cause.
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	GRPCCode   codes.Code        `json:"-"`
	Cause      error             `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Stack      string            `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is by comparing error codes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails attaches structured detail fields, returning a copy.
func (e *Error) WithDetails(details map[string]string) *Error {
	newErr := e.Copy()
	if newErr.Details == nil {
		newErr.Details = make(map[string]string)
	}
	for k, v := range details {
		newErr.Details[k] = v
	}
	return newErr
}

// WithDetail attaches a single detail field, returning a copy.
func (e *Error) WithDetail(key, value string) *Error {
	return e.WithDetails(map[string]string{key: value})
}

// WithMessage replaces the message, returning a copy.
func (e *Error) WithMessage(message string) *Error {
	newErr := e.Copy()
	newErr.Message = message
	return newErr
}

// WithMessagef is WithMessage with fmt formatting.
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Copy returns a deep copy of e.
func (e *Error) Copy() *Error {
	newErr := &Error{
		Code:       e.Code,
		Message:    e.Message,
		HTTPStatus: e.HTTPStatus,
		GRPCCode:   e.GRPCCode,
		Cause:      e.Cause,
		Stack:      e.Stack,
	}
	if e.Details != nil {
		newErr.Details = make(map[string]string)
		for k, v := range e.Details {
			newErr.Details[k] = v
		}
	}
	return newErr
}

// JSON renders e as a JSON string.
func (e *Error) JSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// MarshalJSON implements json.Marshaler, including the rendered code and
// message. The cause is never serialized.
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error,omitempty"`
	}{
		Alias: (*Alias)(e),
		Error: fmt.Sprintf("%s: %s", e.Code, e.Message),
	})
}

// New creates an internal-severity error with the given code and message.
func New(code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		GRPCCode:   codes.Internal,
	}
}

// NewWithStatus creates an error with an explicit HTTP/gRPC status pair.
func NewWithStatus(code, message string, httpStatus int, grpcCode codes.Code) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		GRPCCode:   grpcCode,
	}
}

// Wrap attaches a cause to err, returning a copy with a captured stack.
func Wrap(err *Error, cause error) *Error {
	newErr := err.Copy()
	newErr.Cause = cause
	newErr.Stack = getStack()
	return newErr
}

// Wrapf appends formatted context to err's message.
func Wrapf(err *Error, format string, args ...interface{}) *Error {
	newErr := err.Copy()
	newErr.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	newErr.Stack = getStack()
	return newErr
}

// WrapWithCause combines Wrap and Wrapf.
func WrapWithCause(err *Error, cause error, format string, args ...interface{}) *Error {
	newErr := err.Copy()
	newErr.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	newErr.Cause = cause
	newErr.Stack = getStack()
	return newErr
}

func getStack() string {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var builder strings.Builder
	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return builder.String()
}

// FromError converts any error into an *Error, wrapping unknown errors as
// internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr
	}
	return Wrap(ErrInternal, err)
}

// General-purpose sentinels.
var (
	ErrInternal           = NewWithStatus("INTERNAL_ERROR", "internal error", http.StatusInternalServerError, codes.Internal)
	ErrInvalidRequest     = NewWithStatus("INVALID_REQUEST", "invalid request", http.StatusBadRequest, codes.InvalidArgument)
	ErrUnauthorized       = NewWithStatus("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, codes.Unauthenticated)
	ErrNotFound           = NewWithStatus("NOT_FOUND", "resource not found", http.StatusNotFound, codes.NotFound)
	ErrConflict           = NewWithStatus("CONFLICT", "resource conflict", http.StatusConflict, codes.AlreadyExists)
	ErrRateLimited        = NewWithStatus("RATE_LIMITED", "too many requests", http.StatusTooManyRequests, codes.ResourceExhausted)
	ErrServiceUnavailable = NewWithStatus("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable, codes.Unavailable)
)

// Relayer-specific sentinels.
var (
	// Validation and signature.
	ErrInvalidSignature = NewWithStatus("INVALID_SIGNATURE", "signature is invalid", http.StatusBadRequest, codes.InvalidArgument)
	ErrDeadlineExpired  = NewWithStatus("DEADLINE_EXPIRED", "deadline has expired", http.StatusBadRequest, codes.InvalidArgument)
	ErrInvalidAmount    = NewWithStatus("INVALID_AMOUNT", "amount is invalid", http.StatusBadRequest, codes.InvalidArgument)
	ErrInvalidAddress   = NewWithStatus("INVALID_ADDRESS", "address is invalid", http.StatusBadRequest, codes.InvalidArgument)

	// Nonce and balance.
	ErrNonceAlreadyUsed    = NewWithStatus("NONCE_ALREADY_USED", "nonce already used", http.StatusBadRequest, codes.AlreadyExists)
	ErrInsufficientBalance = NewWithStatus("INSUFFICIENT_BALANCE", "sender has insufficient locked balance", http.StatusPaymentRequired, codes.FailedPrecondition)
	ErrLockoutActive       = NewWithStatus("LOCKOUT_ACTIVE", "sender is in withdrawal lockout period", http.StatusBadRequest, codes.FailedPrecondition)

	// Transfer lookup.
	ErrTransferNotFound = NewWithStatus("TRANSFER_NOT_FOUND", "transfer not found", http.StatusNotFound, codes.NotFound)

	// Oracle / chain reads.
	ErrOracleUnavailable = NewWithStatus("ORACLE_UNAVAILABLE", "failed to check on-chain state", http.StatusBadRequest, codes.Unavailable)

	// Storage.
	ErrDuplicateKey = NewWithStatus("DUPLICATE_KEY", "record already exists", http.StatusConflict, codes.AlreadyExists)
	ErrStoreUnavailable = NewWithStatus("STORE_UNAVAILABLE", "storage backend unavailable", http.StatusServiceUnavailable, codes.Unavailable)
)

// ToHTTPStatus maps err to its HTTP status, defaulting to 500.
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		if bizErr.HTTPStatus != 0 {
			return bizErr.HTTPStatus
		}
		return grpcCodeToHTTP(bizErr.GRPCCode)
	}
	return http.StatusInternalServerError
}

// grpcCodeToHTTP is the status mapping table carried over from the
// teacher's gRPC-facing error package. ToHTTPStatus falls back to it
// for errors whose HTTPStatus is zero; New() sets 500 and every
// sentinel here sets its own status, so only an error built with a
// zero status reaches this table.
func grpcCodeToHTTP(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.Aborted:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err matches target by code.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.Is(err, target)
}

// As is a thin wrapper over errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode returns err's business code, or "UNKNOWN" for foreign errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Code
	}
	return "UNKNOWN"
}

// IsNotFound reports whether err is a not-found class error.
func IsNotFound(err error) bool {
	return Is(err, ErrNotFound) || Is(err, ErrTransferNotFound)
}

// IsRateLimited reports whether err is a rate-limit class error.
func IsRateLimited(err error) bool {
	return Is(err, ErrRateLimited)
}

// IsRetryable reports whether err's gRPC classification suggests retrying
// makes sense (used for storage-layer errors, not the executor's own
// substring-based transport classification — see internal/executor).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		switch bizErr.GRPCCode {
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.DeadlineExceeded:
			return true
		}
	}
	return false
}
