package httpapi

import (
	"errors"
	"net/http"

	"tasknest.org/internal/identity"
	"tasknest.org/internal/membership"
	"tasknest.org/internal/obs"
	"tasknest.org/internal/session"
	"tasknest.org/internal/token"
)

// Single generic message for every authentication failure.
const authFailedMsg = "authentication required"

// handleServiceError maps domain sentinel errors to HTTP once, so handlers
// never hand-roll status codes.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrAuthentication):
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
	case errors.Is(err, identity.ErrBadCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, token.ErrExpiredToken), errors.Is(err, token.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
	case errors.Is(err, identity.ErrForbidden), errors.Is(err, membership.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, membership.ErrNotFound), errors.Is(err, token.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, identity.ErrConflict), errors.Is(err, membership.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidInput), errors.Is(err, membership.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrNotifier):
		writeError(w, r, http.StatusServiceUnavailable, "notification service unavailable")
	default:
		obs.Error("unhandled service error", map[string]any{
			"error":      err.Error(),
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
