package handlers

import (
	"net/http"
	"strconv"
)

// Stats reports the coarse usage counters. All three come from the counter
// store, so they survive restarts together instead of drifting apart.
func (a *App) Stats(w http.ResponseWriter, r *http.Request) {
	out := map[string]int64{
		"generations_started": 0,
		"images_completed":    0,
		"references_uploaded": 0,
	}
	if a.Counter != nil {
		for _, key := range []string{"generations_started", "images_completed", "references_uploaded"} {
			val, ok, err := a.Counter.Get(r.Context(), key)
			if err != nil {
				a.Logger.Warn().Err(err).Str("key", key).Msg("handlers: counter read failed")
				continue
			}
			if ok {
				if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
					out[key] = parsed
				}
			}
		}
	}
	a.json(w, http.StatusOK, out)
}
