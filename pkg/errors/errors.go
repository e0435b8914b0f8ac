package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a recoverable failure reported back to the originating connection.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
// An internal AppError is not exposed, so a wrapped error reports only its
// own code.
func (e *AppError) Unwrap() error {
	if e == nil || e.Internal == nil {
		return nil
	}
	var inner *AppError
	if errors.As(e.Internal, &inner) {
		return nil
	}
	return e.Internal
}

// Is matches on Code so copies produced by WithInternal/WithMessage still
// compare equal to the sentinel they came from.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(format string, args ...any) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = fmt.Sprintf(format, args...)
	return &cpy
}

var (
	ErrUnknownConnection = &AppError{
		Code:       "UNKNOWN_CONNECTION",
		Message:    "Connection is not registered",
		StatusCode: http.StatusNotFound,
	}

	ErrDuplicateConnection = &AppError{
		Code:       "DUPLICATE_CONNECTION",
		Message:    "Connection is already registered",
		StatusCode: http.StatusConflict,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrCallNotFound = &AppError{
		Code:       "CALL_NOT_FOUND",
		Message:    "Call not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInvalidRequest = &AppError{
		Code:       "INVALID_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrCallClaimed = &AppError{
		Code:       "CALL_CLAIMED",
		Message:    "Call already claimed by another staff member",
		StatusCode: http.StatusConflict,
	}

	ErrInvalidState = &AppError{
		Code:       "INVALID_STATE",
		Message:    "Call is not in a state that allows this action",
		StatusCode: http.StatusConflict,
	}

	ErrNotOwner = &AppError{
		Code:       "NOT_OWNER",
		Message:    "Call is held by another staff member",
		StatusCode: http.StatusForbidden,
	}

	ErrTargetUnreachable = &AppError{
		Code:       "TARGET_UNREACHABLE",
		Message:    "Signaling target is not connected",
		StatusCode: http.StatusGone,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// FromError converts a generic error into an AppError, defaulting to ErrInternal.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternal.WithInternal(err)
}
