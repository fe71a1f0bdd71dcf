// Package errors provides custom error types and error handling utilities.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Client errors (4xx).
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeRateLimited    = "RATE_LIMITED"

	// Server errors (5xx).
	CodeInternal         = "INTERNAL_ERROR"
	CodeProcessing       = "PROCESSING_ERROR"
	CodeModelUnavailable = "MODEL_UNAVAILABLE"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeTimeout          = "TIMEOUT"
)

// genericDetail is the only text a client sees for a 5xx response.
const genericDetail = "internal server error"

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// InvalidRequestError creates an invalid request error.
func InvalidRequestError(message string) *AppError {
	return New(CodeInvalidRequest, message)
}

// ProcessingError wraps an unexpected fault raised while orchestrating a request.
func ProcessingError(err error) *AppError {
	return Wrap(CodeProcessing, "request processing failed", err)
}

// ModelUnavailableError reports that the language model could not be reached
// after every retry attempt.
func ModelUnavailableError(attempts int, err error) *AppError {
	return Wrap(CodeModelUnavailable, fmt.Sprintf("model unavailable after %d attempts", attempts), err)
}

// RateLimitedError creates a rate limited error with retry information.
func RateLimitedError(retryAfterSeconds int) *AppError {
	err := New(CodeRateLimited, "too many requests")
	if retryAfterSeconds > 0 {
		err = err.WithDetail("retry_after", fmt.Sprintf("%d", retryAfterSeconds))
	}
	return err
}

// ServiceUnavailableError creates a service unavailable error.
func ServiceUnavailableError(service string) *AppError {
	message := "service unavailable"
	if service != "" {
		message = fmt.Sprintf("%s is unavailable", service)
	}
	return New(CodeUnavailable, message)
}

// As returns the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// ErrorResponse is the JSON error body returned to clients.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// WriteJSON writes a JSON error response to the ResponseWriter.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignore encoding errors - headers already sent
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes an error response with proper sanitization.
// 4xx AppErrors keep their message; everything else collapses into a
// generic internal error so causes never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := As(err)
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Detail: genericDetail,
			Code:   CodeInternal,
		})
		return
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		WriteJSON(w, status, ErrorResponse{
			Detail: genericDetail,
			Code:   appErr.Code,
		})
		return
	}

	if retryAfter, ok := appErr.Details["retry_after"]; ok {
		w.Header().Set("Retry-After", retryAfter)
	}
	WriteJSON(w, status, ErrorResponse{
		Detail: appErr.Message,
		Code:   appErr.Code,
	})
}
