package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an error for callers deciding between retry and abort.
type ErrorType string

const (
	// Caller faults - not retried by the store
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND"
	ErrorTypeAlreadyExists  ErrorType = "ALREADY_EXISTS"
	ErrorTypeImmutableField ErrorType = "IMMUTABLE_FIELD"
	ErrorTypeUnauthorized   ErrorType = "UNAUTHORIZED"

	// Concurrency - caller should re-read and retry
	ErrorTypeVersionConflict ErrorType = "VERSION_CONFLICT"
	ErrorTypeTimeout         ErrorType = "TIMEOUT"

	// Infrastructure
	ErrorTypeCorruptRecord  ErrorType = "CORRUPT_RECORD"
	ErrorTypeDeliveryFailed ErrorType = "DELIVERY_FAILED"
	ErrorTypeDatabase       ErrorType = "DATABASE"
	ErrorTypeInternal       ErrorType = "INTERNAL"
)

// AppError is the typed error carried across all layers.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds structured details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// NewValidationError creates a validation error (malformed input, caller's fault).
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not found error for the given resource.
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewAlreadyExistsError creates a duplicate-create error.
func NewAlreadyExistsError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeAlreadyExists,
		Message:    fmt.Sprintf("%s already exists", resource),
		HTTPStatus: http.StatusConflict,
	}
}

// NewVersionConflictError signals a lost optimistic-concurrency race.
// The caller should re-read the record and retry with the fresh version.
func NewVersionConflictError(resource string, expectedVersion int64) *AppError {
	return &AppError{
		Type:       ErrorTypeVersionConflict,
		Message:    fmt.Sprintf("%s was modified concurrently (expected version %d)", resource, expectedVersion),
		HTTPStatus: http.StatusConflict,
	}
}

// NewImmutableFieldError signals an attempt to change an immutable attribute.
func NewImmutableFieldError(field string) *AppError {
	return &AppError{
		Type:       ErrorTypeImmutableField,
		Message:    fmt.Sprintf("field %q is immutable after creation", field),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewCorruptRecordError signals stored data that fails to decode.
// Surfaced to the caller, never auto-repaired.
func NewCorruptRecordError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeCorruptRecord,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewDeliveryFailedError signals a failed change-delivery attempt.
func NewDeliveryFailedError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDeliveryFailed,
		Message:    message,
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewUnauthorizedError creates an unauthorized error.
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewTimeoutError creates a timeout error. A timed-out write is inconclusive;
// callers must read back before deciding retry vs. abort.
func NewTimeoutError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation %q timed out", operation),
		HTTPStatus: http.StatusRequestTimeout,
	}
}

// NewDatabaseError creates a storage-layer error.
func NewDatabaseError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDatabase,
		Message:    fmt.Sprintf("store operation %q failed", operation),
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// GetAppError extracts an AppError from an error chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks whether an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsAlreadyExists reports whether err is a duplicate-create error.
func IsAlreadyExists(err error) bool {
	return IsType(err, ErrorTypeAlreadyExists)
}

// IsVersionConflict reports whether err is an optimistic-concurrency conflict.
func IsVersionConflict(err error) bool {
	return IsType(err, ErrorTypeVersionConflict)
}

// IsImmutableField reports whether err is an immutable-field violation.
func IsImmutableField(err error) bool {
	return IsType(err, ErrorTypeImmutableField)
}

// IsCorruptRecord reports whether err is a corrupt stored record.
func IsCorruptRecord(err error) bool {
	return IsType(err, ErrorTypeCorruptRecord)
}

// Retryable reports whether the caller may usefully retry after err.
// Version conflicts need a re-read first; timeouts need a read-back.
func Retryable(err error) bool {
	appErr := GetAppError(err)
	if appErr == nil {
		return false
	}
	switch appErr.Type {
	case ErrorTypeVersionConflict, ErrorTypeTimeout, ErrorTypeDatabase, ErrorTypeDeliveryFailed:
		return true
	}
	return false
}

// Wrap adds context to an error, preserving an existing AppError's type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}
