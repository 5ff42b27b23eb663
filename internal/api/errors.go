// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cardscan-intake/gateway/internal/backend"
	"github.com/cardscan-intake/gateway/internal/batch"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewAdmissionError creates a 400 for a batch rejected by the intake gate.
// Message carries the notification title, Details the user-facing reason.
func NewAdmissionError(title, reason string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "ADMISSION_REJECTED",
		Message: title,
		Details: reason,
	}
}

// NewFormContextRequiredError creates the 409 telling the client to prompt
// for name/team/event before retrying the action.
func NewFormContextRequiredError() *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "FORM_CONTEXT_REQUIRED",
		Message: "name, team and event are required before the first save",
	}
}

// NewUpstreamError creates a 502 Bad Gateway for extraction-backend failures
func NewUpstreamError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    "UPSTREAM_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// mapBatchError translates orchestrator and backend errors into APIErrors.
func mapBatchError(err error) *APIError {
	var admission *batch.AdmissionError
	if errors.As(err, &admission) {
		return NewAdmissionError(admission.Title, admission.Reason)
	}
	if errors.Is(err, batch.ErrNoActiveBatch) {
		return NewNotFoundError("batch", "active")
	}
	if errors.Is(err, batch.ErrFormContextRequired) {
		return NewFormContextRequiredError()
	}
	if errors.Is(err, batch.ErrRecordNotFound) {
		return NewNotFoundError("record", "index")
	}
	if errors.Is(err, batch.ErrUnknownField) {
		return NewValidationError("field")
	}

	var statusErr *backend.StatusError
	var transportErr *backend.TransportError
	if errors.As(err, &statusErr) || errors.As(err, &transportErr) {
		return NewUpstreamError("extraction backend request failed", err)
	}
	return NewInternalError("An unexpected error occurred", err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
			Details: err.Error(),
		}
	}

	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}
