// Package errors provides the standardized error taxonomy for the TaylorDash API.
//
// Every handler-level failure is normalized into an AppError before it
// reaches the HTTP layer: a machine-readable Kind, the HTTP status it maps
// to, and a message safe to return to the caller. Details are logged but
// only echoed back to the client for validation errors.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error taxonomy used across the API.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindResourceBusy    Kind = "resource_busy"
	KindUpstreamFailure Kind = "upstream_failure"
	KindInternal        Kind = "internal_error"
	KindTimeout         Kind = "timeout"
)

// AppError is a standardized application error with HTTP context.
type AppError struct {
	Kind    Kind
	Message string
	Details string
	Fields  map[string]string
}

func (e *AppError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status code for the error's kind.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindResourceBusy:
		return http.StatusServiceUnavailable
	case KindUpstreamFailure:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Response is the wire format for every error body: {"detail": "..."}.
type Response struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ToResponse converts an AppError to its wire response. Only validation
// errors surface field-level detail; everything else stays generic.
func (e *AppError) ToResponse() Response {
	resp := Response{Detail: e.Message}
	if e.Kind == KindValidation {
		resp.Fields = e.Fields
	}
	return resp
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &AppError{Kind: kind, Message: message, Details: details}
}

func Validation(message string, fields map[string]string) *AppError {
	return &AppError{Kind: KindValidation, Message: message, Fields: fields}
}

func Unauthenticated() *AppError {
	return New(KindUnauthenticated, "invalid or expired credentials")
}

func Forbidden() *AppError {
	return New(KindForbidden, "insufficient permissions")
}

func NotFound(resource string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(KindConflict, message)
}

func ResourceBusy(message string) *AppError {
	return New(KindResourceBusy, message)
}

func UpstreamFailure(err error) *AppError {
	return Wrap(KindUpstreamFailure, "upstream dependency unavailable", err)
}

func Internal(err error) *AppError {
	return Wrap(KindInternal, "internal server error", err)
}

func Timeout() *AppError {
	return New(KindTimeout, "request timed out")
}

// As reports whether err is (or wraps) an *AppError, returning it if so.
func As(err error) (*AppError, bool) {
	var ae *AppError
	ok := stderrors.As(err, &ae)
	return ae, ok
}

// Classify converts any error into an AppError, defaulting to internal_error
// when it cannot already be classified. Used at the outermost handler
// boundary so every response goes through the taxonomy.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	return Internal(err)
}
