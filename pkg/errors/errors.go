package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Authorization errors
	ErrCodeForbidden      ErrorCode = "FORBIDDEN"
	ErrCodeNotParticipant ErrorCode = "UNAUTHORIZED_PARTICIPANT"
	ErrCodeWrongRole      ErrorCode = "WRONG_SIGNALING_ROLE"

	// Not found errors
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeAppointmentNotFound ErrorCode = "APPOINTMENT_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeSlotTaken         ErrorCode = "SLOT_TAKEN"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase       ErrorCode = "DATABASE_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, so sentinel comparisons work with errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func MissingFieldError(field string) *AppError {
	return NewWithStatus(ErrCodeMissingField, fmt.Sprintf("Missing required field: %s", field), http.StatusBadRequest)
}

// Authorization errors
func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

func NotParticipantError() *AppError {
	return NewWithStatus(ErrCodeNotParticipant, "You are not authorized to join this call", http.StatusForbidden)
}

func WrongRoleError(field string) *AppError {
	return NewWithStatus(ErrCodeWrongRole, fmt.Sprintf("Caller may not write the %s field", field), http.StatusForbidden)
}

// Not found errors
func AppointmentNotFoundError() *AppError {
	return NewWithStatus(ErrCodeAppointmentNotFound, "Appointment not found", http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

func SlotTakenError() *AppError {
	return NewWithStatus(ErrCodeSlotTaken, "This time slot is already booked", http.StatusConflict)
}

func InvalidTransitionError(from, to string) *AppError {
	return NewWithStatus(ErrCodeInvalidTransition, fmt.Sprintf("Cannot move appointment from %s to %s", from, to), http.StatusConflict)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return WrapWithStatus(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

func UpstreamError(err error) *AppError {
	return WrapWithStatus(ErrCodeUpstream, "Upstream service error", http.StatusBadGateway, err)
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
