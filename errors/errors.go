package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Kind is a machine-readable error kind.
	Kind Kind `json:"kind"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(kind Kind, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableKind(kind),
	}
}

// --- Common Error Constructors ---

// BadPipeline creates a new AppError for a pipeline that failed verification.
func BadPipeline(reason string) *AppError {
	return &AppError{
		Kind: KindBadPipeline, Message: reason,
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
	}
}

// NoSuchRequest creates a new AppError for an unknown request id.
func NoSuchRequest(requestID string) *AppError {
	return &AppError{
		Kind: KindNoSuchRequest, Message: fmt.Sprintf("request %s not found", requestID),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"request_id": requestID},
	}
}

// AdapterBadInput creates a new AppError for params an adapter rejected.
func AdapterBadInput(reason string) *AppError {
	return &AppError{
		Kind: KindAdapterBadInput, Message: reason,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// UpstreamUnavailable creates a new AppError for an unreachable external service.
func UpstreamUnavailable(service string, cause error) *AppError {
	return &AppError{
		Kind: KindUpstreamUnavailable, Message: fmt.Sprintf("upstream %s unavailable", service),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}

// Internal creates a new AppError for an internal broker or cache failure.
func Internal(cause error) *AppError {
	return &AppError{
		Kind: KindInternal, Message: "internal error",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// Cancelled creates a new AppError describing a cancelled node. The origin
// names the node whose failure or cancellation propagated here; empty for an
// explicit client cancel.
func Cancelled(origin string) *AppError {
	e := &AppError{
		Kind: KindCancelled, Message: "cancelled",
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
	if origin != "" {
		e.Message = fmt.Sprintf("cancelled due to %s", origin)
		e.WithDetail("origin_node_id", origin)
	}
	return e
}

// Validation creates a new AppError for invalid client input. Validation
// failures on pipeline submission surface as BAD_PIPELINE.
func Validation(message string) *AppError {
	return &AppError{
		Kind: KindBadPipeline, Message: message,
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
	}
}

// Unauthorized creates a new AppError for unauthenticated access.
func Unauthorized(reason string) *AppError {
	if reason == "" {
		reason = "authentication required"
	}
	return &AppError{
		Kind: KindUnauthorized, Message: reason,
		HTTPStatus: http.StatusUnauthorized, Retryable: false,
	}
}

// Forbidden creates a new AppError for rejected credentials.
func Forbidden(reason string) *AppError {
	if reason == "" {
		reason = "request did not provide valid credentials"
	}
	return &AppError{
		Kind: KindForbidden, Message: reason,
		HTTPStatus: http.StatusForbidden, Retryable: false,
	}
}
