// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/noah-isme/taskmanager/internal/shared"
)

// UnauthenticatedMessage is the only body ever sent for a 401.
const UnauthenticatedMessage = "Please authenticate."

// RespondError maps domain errors to HTTP responses using RFC7807.
// Internal errors are logged and answered without detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validation *shared.ValidationError
	switch {
	case errors.As(err, &validation):
		ValidationProblem(w, validation.Fields)
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusBadRequest, "Bad Request", shared.ErrInvalidCredentials.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		Unauthenticated(w)
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "")
	default:
		if logger != nil {
			logger.Error("internal error", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Unauthenticated writes the uniform 401 response.
func Unauthenticated(w http.ResponseWriter) {
	JSON(w, http.StatusUnauthorized, map[string]string{"error": UnauthenticatedMessage})
}
