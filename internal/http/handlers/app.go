package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"studio/internal/analytics"
	"studio/internal/blobstore"
	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/uploads"
	"studio/internal/view"
)

// App is the handler container: every route is a method on it, dependencies
// are injected once in main.
type App struct {
	Logger       infra.Logger
	Orchestrator *imagegen.Orchestrator
	Uploads      *uploads.Coordinator
	Resolver     *view.Resolver
	Store        blobstore.Store
	Counter      analytics.Counter
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: message}})
}

// generationError maps the imagegen taxonomy onto HTTP statuses; the message
// is already user-facing.
func (a *App) generationError(w http.ResponseWriter, err error) {
	kind := imagegen.KindOf(err)
	message := err.Error()
	var genErr *imagegen.Error
	if errors.As(err, &genErr) {
		message = genErr.Message
	}
	switch kind {
	case imagegen.ErrValidation:
		a.error(w, http.StatusBadRequest, string(kind), message)
	case imagegen.ErrCredential:
		a.error(w, http.StatusUnauthorized, string(kind), message)
	case imagegen.ErrQuota, imagegen.ErrRateLimited:
		a.error(w, http.StatusTooManyRequests, string(kind), message)
	default:
		a.error(w, http.StatusInternalServerError, string(kind), message)
	}
}

// count bumps an analytics counter; counter failures are logged, never
// surfaced.
func (a *App) count(ctx context.Context, key string) {
	if a.Counter == nil {
		return
	}
	if _, err := a.Counter.Incr(ctx, key); err != nil {
		a.Logger.Warn().Err(err).Str("key", key).Msg("handlers: counter increment failed")
	}
}
