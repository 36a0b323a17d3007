package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeInvalidPath       ErrorType = "invalid_path"
	ErrorTypeImageRead         ErrorType = "image_read"
	ErrorTypeEngineUnavailable ErrorType = "engine_unavailable"
	ErrorTypeEngineTimeout     ErrorType = "engine_timeout"
	ErrorTypeExtraction        ErrorType = "extraction"
	ErrorTypeEmptyText         ErrorType = "empty_text"
	ErrorTypeStorage           ErrorType = "storage"
	ErrorTypeNetwork           ErrorType = "network"
	ErrorTypeInternal          ErrorType = "internal"
)

// Exit codes of the command line tools
const (
	ExitOK                = 0
	ExitInvalidInput      = 1
	ExitEngineUnavailable = 2
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewInvalidPathError is returned when a CLI path argument does not exist
func NewInvalidPathError(path string, cause error) *AppError {
	e := newError(ErrorTypeInvalidPath, http.StatusBadRequest, "invalid path", cause)
	e.Details = path
	return e
}

// NewImageReadError is returned when a source image cannot be opened or decoded.
// It is fatal to that image only.
func NewImageReadError(message string, cause error) *AppError {
	return newError(ErrorTypeImageRead, http.StatusUnprocessableEntity, message, cause)
}

// NewEngineUnavailableError is returned when the OCR engine cannot be located or
// configured. It is fatal to the whole run.
func NewEngineUnavailableError(message string, cause error) *AppError {
	return newError(ErrorTypeEngineUnavailable, http.StatusServiceUnavailable, message, cause)
}

// NewEngineTimeoutError is returned when one extraction exceeds its time bound
func NewEngineTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeEngineTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewExtractionError wraps any other recognition failure
func NewExtractionError(message string, cause error) *AppError {
	return newError(ErrorTypeExtraction, http.StatusUnprocessableEntity, message, cause)
}

// NewEmptyTextError is returned by the classifier for empty or whitespace-only input
func NewEmptyTextError() *AppError {
	return newError(ErrorTypeEmptyText, http.StatusUnprocessableEntity, "empty_text", nil)
}

// NewStorageError wraps artifact persistence failures
func NewStorageError(message string, cause error) *AppError {
	return newError(ErrorTypeStorage, http.StatusInternalServerError, message, cause)
}

// NewNetworkError wraps failures to download a remote image
func NewNetworkError(message string, cause error) *AppError {
	return newError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// IsType checks if the error, or any error it wraps, is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ExitCode maps an error to the documented process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if IsType(err, ErrorTypeEngineUnavailable) {
		return ExitEngineUnavailable
	}
	return ExitInvalidInput
}
