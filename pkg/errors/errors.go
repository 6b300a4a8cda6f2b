// Package errors defines the sentinel errors shared across the classifier
// and maps them onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrModelMissing means no model artifact is present on disk or published.
	ErrModelMissing = errors.New("model missing")
	// ErrModelNotTrained means classify was called on a model with no labels.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrArtifactCorrupt means a persisted model failed structural checks.
	ErrArtifactCorrupt = errors.New("model artifact corrupt")

	ErrInvalidInput       = errors.New("invalid input")
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
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

// HTTPStatusCode picks the response status for err. A missing, untrained or
// corrupt model is a service-unavailable condition, never a guessed label.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTrainingInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrModelMissing),
		errors.Is(err, ErrModelNotTrained),
		errors.Is(err, ErrArtifactCorrupt),
		errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
