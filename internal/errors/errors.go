package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory says who is at fault: the caller, this server, or
// svtplay-dl and the services behind it
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
)

const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMITED"

	CodeJobNotFound     = "JOB_NOT_FOUND"
	CodeProfileNotFound = "PROFILE_NOT_FOUND"
	CodeFileNotFound    = "FILE_NOT_FOUND"

	CodeInternalError = "INTERNAL_ERROR"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"

	CodeDownloadError   = "DOWNLOAD_ERROR"
	CodeExternalTimeout = "EXTERNAL_TIMEOUT"
)

// AppError is an error with an HTTP status and a stable code clients can
// switch on
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"-"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// ErrorResponse is the body of every error answer:
// {"error":{"code","message","request_id","details"}}
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// New creates an AppError
func New(code, message string, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, Category: category, HTTPStatus: httpStatus}
}

func client(code string, status int, message string) *AppError {
	return New(code, message, CategoryClient, status)
}

// BadRequest is a request that could not be read at all
func BadRequest(message string) *AppError {
	return client(CodeInvalidRequest, http.StatusBadRequest, message)
}

// ValidationError is a readable request with unacceptable values
func ValidationError(message string) *AppError {
	return client(CodeValidationError, http.StatusBadRequest, message)
}

func Forbidden(message string) *AppError {
	return client(CodeForbidden, http.StatusForbidden, message)
}

func NotFound(resource string) *AppError {
	return client(CodeNotFound, http.StatusNotFound, resource+" not found")
}

func JobNotFound() *AppError {
	return client(CodeJobNotFound, http.StatusNotFound, "job not found")
}

func ProfileNotFound() *AppError {
	return client(CodeProfileNotFound, http.StatusNotFound, "profile not found")
}

func FileNotFound() *AppError {
	return client(CodeFileNotFound, http.StatusNotFound, "file not found")
}

func RateLimited() *AppError {
	return client(CodeRateLimited, http.StatusTooManyRequests, "too many submissions, slow down")
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message, CategoryServer, http.StatusInternalServerError)
}

// Unavailable means the server cannot take the request right now, e.g.
// the runner is shutting down or svtplay-dl is missing
func Unavailable(message string) *AppError {
	return New(CodeUnavailable, message, CategoryServer, http.StatusServiceUnavailable)
}

// DownloadError reports a failure of svtplay-dl itself
func DownloadError(message string) *AppError {
	return New(CodeDownloadError, message, CategoryExternal, http.StatusBadGateway)
}

func ExternalTimeout(service string) *AppError {
	return New(CodeExternalTimeout, service+" did not answer in time", CategoryExternal, http.StatusGatewayTimeout)
}

// WriteError writes err as a JSON error body. Errors that are not an
// *AppError anywhere in their chain become a generic 500.
func WriteError(w http.ResponseWriter, requestID string, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError("an unexpected error occurred").WithCause(err)
	}

	WriteJSON(w, requestID, appErr.HTTPStatus, ErrorResponse{
		Error: ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			RequestID: requestID,
			Details:   appErr.Details,
		},
	})
}

// WriteJSON writes a JSON response with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// IsRetryable reports whether err is an external or transient server failure
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Category {
	case CategoryExternal:
		return true
	case CategoryServer:
		return appErr.HTTPStatus == http.StatusServiceUnavailable
	}
	return false
}

// IsClientError reports whether err was caused by the request itself
func IsClientError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Category == CategoryClient
}
