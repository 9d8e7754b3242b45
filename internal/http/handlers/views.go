package handlers

import (
	"errors"
	"net/http"

	"studio/internal/blobstore"
	"studio/internal/view"
)

// ViewResolve turns a storage key into a display-ready URL (or raw text for
// non-images). Oversized objects get a distinct, recoverable error so the UI
// can mark just that image.
func (a *App) ViewResolve(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "key query parameter is required")
		return
	}

	resolved, err := a.Resolver.Resolve(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, view.ErrTooLarge):
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "object is too large for inline preview")
		case errors.Is(err, blobstore.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "object not found")
		default:
			a.Logger.Error().Err(err).Str("key", key).Msg("handlers: view resolution failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to resolve object")
		}
		return
	}
	a.json(w, http.StatusOK, resolved)
}
