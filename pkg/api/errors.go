package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	echo "github.com/labstack/echo/v5"

	"github.com/cruciblehq/crucible/pkg/models"
)

// ErrorDetail pinpoints one invalid field in a rejected request.
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorBody is the error response shape shared by every endpoint.
type ErrorBody struct {
	Error   string        `json:"error"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// httpError writes a structured error body with the given status.
func httpError(c *echo.Context, status int, msg string) error {
	return c.JSON(status, &ErrorBody{Error: msg})
}

// mapServiceError converts service-layer errors to HTTP responses.
// Validation failures carry field details; anything unrecognized becomes a
// 500 without leaking internals. Test failures never arrive here — the
// executors report them inside a TestResult with a 200.
func mapServiceError(c *echo.Context, err error) error {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusUnprocessableEntity, &ErrorBody{
			Error:   "validation failed",
			Details: []ErrorDetail{{Field: ve.Field, Message: ve.Message}},
		})
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		return httpError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrNotCancellable):
		return httpError(c, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrAlreadyExists):
		return httpError(c, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrAlertResolved):
		return httpError(c, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrAlreadyAcknowledged):
		return httpError(c, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrCapacity):
		return httpError(c, http.StatusTooManyRequests, err.Error())
	default:
		slog.Error("Unhandled service error", "error", err)
		return httpError(c, http.StatusInternalServerError, "internal server error")
	}
}

// validationFailed renders request-binding validator violations as a 422
// with one detail entry per failed field.
func validationFailed(c *echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return httpError(c, http.StatusUnprocessableEntity, err.Error())
	}
	details := make([]ErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, ErrorDetail{
			Field:   fe.Field(),
			Message: "failed on the '" + fe.Tag() + "' rule",
		})
	}
	return c.JSON(http.StatusUnprocessableEntity, &ErrorBody{
		Error:   "validation failed",
		Details: details,
	})
}
