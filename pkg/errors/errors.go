package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSourceUnavailable = errors.New("retrieval source unavailable")
	ErrAllSourcesFailed  = errors.New("all retrieval sources failed")
	ErrTenantIsolation   = errors.New("tenant isolation violation")
	ErrMissingTenant     = errors.New("tenant identifier required")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrRecordNotFound    = errors.New("record not found")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsContractFault reports whether err is a caller contract violation that
// must surface synchronously instead of degrading the retrieval result.
func IsContractFault(err error) bool {
	return errors.Is(err, ErrMissingTenant) ||
		errors.Is(err, ErrInvalidQuery) ||
		errors.Is(err, ErrTenantIsolation)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingTenant), errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrTenantIsolation):
		return http.StatusForbidden
	case errors.Is(err, ErrSourceUnavailable), errors.Is(err, ErrAllSourcesFailed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
