package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"guardian/internal/config"
	"guardian/internal/patterns"
	"guardian/internal/qa"
	"guardian/internal/repo"
	"guardian/internal/vectorstore"
)

// Error is an API failure with a stable machine-readable code.
type Error struct {
	Status int
	Code   string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func badRequest(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalid_argument", Msg: fmt.Sprintf(format, args...)}
}

// classify maps package sentinel errors to HTTP statuses.
func classify(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return &Error{Status: http.StatusBadRequest, Code: "validation", Msg: "invalid request", Err: err}
	case errors.Is(err, config.ErrConfig):
		return &Error{Status: http.StatusBadRequest, Code: "invalid_argument", Msg: "invalid input", Err: err}
	case errors.Is(err, qa.ErrSessionNotFound):
		return &Error{Status: http.StatusNotFound, Code: "not_found", Msg: "session not found", Err: err}
	case errors.Is(err, repo.ErrLocalNotAllowed):
		return &Error{Status: http.StatusUnprocessableEntity, Code: "clone_failed", Msg: "only remote repository urls are accepted", Err: err}
	case errors.Is(err, repo.ErrClone):
		return &Error{Status: http.StatusUnprocessableEntity, Code: "clone_failed", Msg: "could not clone repository", Err: err}
	case errors.Is(err, vectorstore.ErrStoreUnavailable):
		return &Error{Status: http.StatusServiceUnavailable, Code: "unavailable", Msg: "vector store unavailable", Err: err}
	case errors.Is(err, patterns.ErrPatternGenerationFailed):
		return &Error{Status: http.StatusBadGateway, Code: "model_error", Msg: "pattern generation failed", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Status: http.StatusGatewayTimeout, Code: "timeout", Msg: "request timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Status: 499, Code: "canceled", Msg: "request canceled", Err: err}
	default:
		return &Error{Status: http.StatusInternalServerError, Code: "internal", Msg: "internal error", Err: err}
	}
}
