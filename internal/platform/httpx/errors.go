// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/arenahub/arenahub/internal/authz"
)

// Sentinel errors for request-level failures outside the authz taxonomy.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, authz.ErrConflict), errors.Is(err, authz.ErrLocked):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, authz.ErrInvalidPolicy), errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, authz.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, authz.ErrStoreUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "policy store unavailable")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
