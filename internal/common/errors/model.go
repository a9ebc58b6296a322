package errors

import (
	"errors"
	"net/http"

	"github.com/ait42/orchestrator/internal/model"
)

// FromModelErr maps a core sentinel error onto the AppError shape the
// External Command Surface serializes, so handlers never hand-roll status
// codes per sentinel.
func FromModelErr(err error) *AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrUnknownRun):
		return &AppError{Code: ErrCodeNotFound, Message: err.Error(), HTTPStatus: http.StatusNotFound, Err: err}
	case errors.Is(err, model.ErrAlreadyTerminal):
		return &AppError{Code: ErrCodeConflict, Message: err.Error(), HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, model.ErrInvalidRequest),
		errors.Is(err, model.ErrEmptyInput),
		errors.Is(err, model.ErrNotARepo):
		return &AppError{Code: ErrCodeBadRequest, Message: err.Error(), HTTPStatus: http.StatusBadRequest, Err: err}
	case errors.Is(err, model.ErrInvalidEstimate), errors.Is(err, model.ErrLLMRequestFailed):
		return &AppError{Code: ErrCodeServiceUnavailable, Message: err.Error(), HTTPStatus: http.StatusServiceUnavailable, Err: err}
	default:
		return InternalError("unexpected error", err)
	}
}
