package errorbank

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Kind enumerates supported application error categories.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindConflict            Kind = "conflict"
	KindNotFound            Kind = "not_found"
	KindUnprocessableEntity Kind = "unprocessable_entity"
	KindInternal            Kind = "internal"
)

var httpStatusByKind = map[Kind]int{
	KindBadRequest:          http.StatusBadRequest,
	KindConflict:            http.StatusConflict,
	KindNotFound:            http.StatusNotFound,
	KindUnprocessableEntity: http.StatusUnprocessableEntity,
	KindInternal:            http.StatusInternalServerError,
}

var grpcCodeByKind = map[Kind]codes.Code{
	KindBadRequest:          codes.InvalidArgument,
	KindConflict:            codes.AlreadyExists,
	KindNotFound:            codes.NotFound,
	KindUnprocessableEntity: codes.FailedPrecondition,
	KindInternal:            codes.Internal,
}

// AppError carries an error category plus optional structured details so
// every transport renders failures the same way.
type AppError struct {
	kind    Kind
	message string
	details map[string]any
	cause   error
}

// Option mutates an AppError during construction.
type Option func(*AppError)

// WithCause attaches an underlying error.
func WithCause(err error) Option {
	return func(appErr *AppError) {
		appErr.cause = err
	}
}

// WithDetail adds a single named detail value.
func WithDetail(key string, value any) Option {
	return func(appErr *AppError) {
		if key == "" {
			return
		}
		if appErr.details == nil {
			appErr.details = make(map[string]any, 1)
		}
		appErr.details[key] = value
	}
}

// WithDetails merges multiple detail values.
func WithDetails(details map[string]any) Option {
	return func(appErr *AppError) {
		for key, value := range details {
			WithDetail(key, value)(appErr)
		}
	}
}

// New constructs an AppError of the given kind. An empty message falls back
// to the kind name.
func New(kind Kind, message string, opts ...Option) *AppError {
	appErr := &AppError{kind: kind, message: message}
	if appErr.message == "" {
		appErr.message = string(kind)
	}
	for _, opt := range opts {
		opt(appErr)
	}
	return appErr
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Kind returns the error category.
func (e *AppError) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

// Message returns the human-readable message.
func (e *AppError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Details returns optional metadata about the error.
func (e *AppError) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

// StatusCode resolves the HTTP status for the error kind.
func (e *AppError) StatusCode() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if status, ok := httpStatusByKind[e.kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// GRPCCode maps the error kind onto a gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if e == nil {
		return codes.Internal
	}
	if code, ok := grpcCodeByKind[e.kind]; ok {
		return code
	}
	return codes.Internal
}

// BadRequest constructs a 400 error.
func BadRequest(message string, opts ...Option) *AppError {
	return New(KindBadRequest, message, opts...)
}

// Conflict constructs a 409 error.
func Conflict(message string, opts ...Option) *AppError {
	return New(KindConflict, message, opts...)
}

// NotFound constructs a 404 error.
func NotFound(message string, opts ...Option) *AppError {
	return New(KindNotFound, message, opts...)
}

// Unprocessable constructs a 422 error.
func Unprocessable(message string, opts ...Option) *AppError {
	return New(KindUnprocessableEntity, message, opts...)
}

// Internal constructs a generic 500 error.
func Internal(message string, opts ...Option) *AppError {
	return New(KindInternal, message, opts...)
}

// From returns an AppError for any error input. Unexpected errors are
// wrapped as internal so their text never leaks to clients verbatim.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal error", WithCause(err))
}
