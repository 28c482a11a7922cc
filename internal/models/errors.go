package models

import (
	"fmt"
)

// Envelope codes returned to the widget client.
const (
	CodeOK          = 0
	CodeFailure     = 1000
	CodeUnsupported = 1001
	CodeNeedLogin   = 1024
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Code:    "RATE_LIMITED",
		Message: message,
	}
}

func NewUnsupportedEventError(event string) *AppError {
	return &AppError{
		Code:    "UNSUPPORTED_EVENT",
		Message: fmt.Sprintf("unsupported event %q, please upgrade the widget client", event),
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
		Err:     err,
	}
}

// EnvelopeCode maps an application error to the widget envelope code.
func EnvelopeCode(err error) int {
	appErr, ok := err.(*AppError)
	if !ok {
		return CodeFailure
	}
	switch appErr.Code {
	case "UNAUTHORIZED":
		return CodeNeedLogin
	case "UNSUPPORTED_EVENT":
		return CodeUnsupported
	default:
		return CodeFailure
	}
}
