// Package fnerr defines the typed errors returned by callable operations.
//
// Kinds reuse gRPC status codes so a callable error can be surfaced over HTTP
// (as a Firebase-style "callable" error) or converted with status.FromError.
package fnerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a callable error with a stable Kind and a message safe to show to users.
// Cause is kept for logs only and is never serialized.
type Error struct {
	Kind    codes.Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", Slug(e.Kind), e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", Slug(e.Kind), e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// GRPCStatus lets status.FromError and status.Code understand callable errors.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind, e.Message)
}

// New creates a callable error of the given kind.
func New(kind codes.Code, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates a callable error that keeps cause for logging.
func Wrap(kind codes.Code, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Unauthenticated(msg string) *Error    { return New(codes.Unauthenticated, msg) }
func InvalidArgument(msg string) *Error    { return New(codes.InvalidArgument, msg) }
func FailedPrecondition(msg string) *Error { return New(codes.FailedPrecondition, msg) }
func NotFound(msg string) *Error           { return New(codes.NotFound, msg) }
func PermissionDenied(msg string) *Error   { return New(codes.PermissionDenied, msg) }
func Internal(msg string) *Error           { return New(codes.Internal, msg) }

// InternalMessage is the only message an untyped failure ever exposes.
const InternalMessage = "An unexpected error occurred. Please try again."

// Normalize passes typed callable errors through unchanged and turns anything
// else into a generic Internal error that wraps err.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(codes.Internal, InternalMessage, err)
}

// KindOf returns the kind of err, or codes.Unknown for non-callable errors.
func KindOf(err error) codes.Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return codes.Unknown
}

// Slug renders a kind the way callable clients expect it ("failed-precondition").
func Slug(kind codes.Code) string {
	switch kind {
	case codes.OK:
		return "ok"
	case codes.Canceled:
		return "cancelled"
	case codes.InvalidArgument:
		return "invalid-argument"
	case codes.DeadlineExceeded:
		return "deadline-exceeded"
	case codes.NotFound:
		return "not-found"
	case codes.AlreadyExists:
		return "already-exists"
	case codes.PermissionDenied:
		return "permission-denied"
	case codes.ResourceExhausted:
		return "resource-exhausted"
	case codes.FailedPrecondition:
		return "failed-precondition"
	case codes.Aborted:
		return "aborted"
	case codes.OutOfRange:
		return "out-of-range"
	case codes.Unimplemented:
		return "unimplemented"
	case codes.Internal:
		return "internal"
	case codes.Unavailable:
		return "unavailable"
	case codes.DataLoss:
		return "data-loss"
	case codes.Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// StatusName renders a kind as the canonical upper-snake status ("FAILED_PRECONDITION").
func StatusName(kind codes.Code) string {
	return strings.ToUpper(strings.ReplaceAll(Slug(kind), "-", "_"))
}

// HTTPStatus maps a kind to the HTTP status used by the callable transport.
func HTTPStatus(kind codes.Code) int {
	switch kind {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled:
		return 499
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
