package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studio/internal/imagegen"
)

type generateRequest struct {
	Prompt        string   `json:"prompt"`
	ImageCount    int      `json:"image_count"`
	APIKey        string   `json:"api_key"`
	ReferenceKeys []string `json:"reference_keys"`
}

type batchResponse struct {
	BatchID string          `json:"batch_id"`
	Slots   []imagegen.Slot `json:"slots"`
}

type slotsResponse struct {
	Slots           []imagegen.Slot        `json:"slots"`
	HasActive       bool                   `json:"has_active"`
	CompletedImages []imagegen.StoredImage `json:"completed_images"`
}

// GenerationsStart validates and kicks off one batch. The call returns as
// soon as the slots exist; the browser polls GenerationsList for progress.
func (a *App) GenerationsStart(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	// Key format problems are caught here, before any slot exists, so a bad
	// key costs neither quota nor placeholder churn.
	if err := imagegen.ValidateAPIKey(req.APIKey); err != nil {
		a.generationError(w, err)
		return
	}

	batchID, err := a.Orchestrator.StartBatch(imagegen.BatchRequest{
		Prompt:        req.Prompt,
		ImageCount:    req.ImageCount,
		APIKey:        req.APIKey,
		ReferenceKeys: req.ReferenceKeys,
	})
	if err != nil {
		a.generationError(w, err)
		return
	}

	a.count(r.Context(), "generations_started")

	var slots []imagegen.Slot
	for _, slot := range a.Orchestrator.Slots() {
		if slot.BatchID == batchID {
			slots = append(slots, slot)
		}
	}
	a.json(w, http.StatusAccepted, batchResponse{BatchID: batchID, Slots: slots})
}

// GenerationsList returns every slot plus the derived aggregate views.
func (a *App) GenerationsList(w http.ResponseWriter, r *http.Request) {
	slots := a.Orchestrator.Slots()
	if slots == nil {
		slots = []imagegen.Slot{}
	}
	images := a.Orchestrator.CompletedImages()
	if images == nil {
		images = []imagegen.StoredImage{}
	}
	a.json(w, http.StatusOK, slotsResponse{
		Slots:           slots,
		HasActive:       a.Orchestrator.HasActive(),
		CompletedImages: images,
	})
}

// GenerationGet returns one slot.
func (a *App) GenerationGet(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	slot, ok := a.Orchestrator.Slot(slotID)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "slot not found")
		return
	}
	a.json(w, http.StatusOK, slot)
}

// GenerationCancel marks a generating slot as cancelled and aborts its
// in-flight request. Terminal slots are reported as-is.
func (a *App) GenerationCancel(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	cancelled := a.Orchestrator.Cancel(slotID)
	slot, ok := a.Orchestrator.Slot(slotID)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "slot not found")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"cancelled": cancelled, "slot": slot})
}

// GenerationRetry re-runs a failed slot.
func (a *App) GenerationRetry(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	if _, ok := a.Orchestrator.Slot(slotID); !ok {
		a.error(w, http.StatusNotFound, "not_found", "slot not found")
		return
	}
	if !a.Orchestrator.Retry(slotID) {
		a.error(w, http.StatusConflict, "conflict", "only failed slots can be retried")
		return
	}
	slot, _ := a.Orchestrator.Slot(slotID)
	a.json(w, http.StatusOK, slot)
}
