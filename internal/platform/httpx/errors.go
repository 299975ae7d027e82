package httpx

import (
	"errors"
	"net/http"

	"github.com/fogon-pos/fogon/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Validation failures are client errors, atomic-guard conflicts map to 409,
// stock insufficiency to 422, anything unrecognised is a persistence-level
// failure and surfaces as 500 without leaking internals.
func RespondError(w http.ResponseWriter, err error) {
	var ve shared.ValidationError
	switch {
	case errors.As(err, &ve):
		Problem(w, http.StatusBadRequest, "Validation Failed", ve.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrStateConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
