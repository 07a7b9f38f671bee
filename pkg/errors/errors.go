package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by the record store, the search index and the services.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrStoreUnavailable  = errors.New("record store unavailable")
	ErrIndexUnavailable  = errors.New("search index unavailable")
	ErrIndexInconsistent = errors.New("search index returned an invalid response")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// StoreUnavailable reports a failed or unreachable record store operation.
// The cause stays reachable through errors.Is / errors.As.
func StoreUnavailable(op string, cause error) *AppError {
	return &AppError{
		Code:    "STORE_UNAVAILABLE",
		Message: fmt.Sprintf("record store %s failed", op),
		Status:  http.StatusInternalServerError,
		Err:     errors.Join(ErrStoreUnavailable, cause),
	}
}

// IndexUnavailable reports a failed or unreachable search index operation.
func IndexUnavailable(op string, cause error) *AppError {
	return &AppError{
		Code:    "INDEX_UNAVAILABLE",
		Message: fmt.Sprintf("search index %s failed", op),
		Status:  http.StatusInternalServerError,
		Err:     errors.Join(ErrIndexUnavailable, cause),
	}
}

// IndexInconsistent reports a search response that could not be interpreted.
func IndexInconsistent(message string) *AppError {
	return &AppError{
		Code:    "INDEX_INCONSISTENT",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     ErrIndexInconsistent,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable error code used in API responses.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	case errors.Is(err, ErrIndexUnavailable):
		return "INDEX_UNAVAILABLE"
	case errors.Is(err, ErrIndexInconsistent):
		return "INDEX_INCONSISTENT"
	default:
		return "INTERNAL_ERROR"
	}
}
