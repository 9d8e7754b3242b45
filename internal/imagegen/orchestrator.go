package imagegen

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studio/internal/infra"
)

const cancelledMessage = "Cancelled by user"

// Generator is the executor contract the orchestrator dispatches against.
type Generator interface {
	Generate(ctx context.Context, params GenerateParams) (*StoredImage, error)
}

// OrchestratorOptions configures an Orchestrator. OnComplete, when set, is
// invoked once per slot that reaches completed, outside the slot lock.
type OrchestratorOptions struct {
	Executor   Generator
	MaxImages  int
	OnComplete func(StoredImage)
	Logger     *infra.Logger
}

// Orchestrator owns the generation slots. One StartBatch call creates N
// slots up front and fires N independent executor goroutines; each goroutine
// reports exactly one completion tagged with its slot ID and attempt number,
// and the guarded apply step only ever touches that one slot. Completions
// commute: arrival order never changes the final slot set.
type Orchestrator struct {
	exec       Generator
	maxImages  int
	onComplete func(StoredImage)
	logger     *infra.Logger

	mu       sync.Mutex
	slots    map[string]*Slot
	order    []string
	attempts map[string]int
	cancels  map[string]context.CancelFunc
	params   map[string]GenerateParams

	wg sync.WaitGroup
}

// NewOrchestrator builds an Orchestrator around the given executor.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	maxImages := opts.MaxImages
	if maxImages <= 0 {
		maxImages = 5
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Orchestrator{
		exec:       opts.Executor,
		maxImages:  maxImages,
		onComplete: opts.OnComplete,
		logger:     logger,
		slots:      make(map[string]*Slot),
		attempts:   make(map[string]int),
		cancels:    make(map[string]context.CancelFunc),
		params:     make(map[string]GenerateParams),
	}
}

// BatchRequest is one user-initiated generation action.
type BatchRequest struct {
	Prompt         string
	ImageCount     int
	APIKey         string
	ReferenceKeys  []string
	ReferenceFiles []Reference
}

// StartBatch validates the request, synchronously creates ImageCount slots
// (pending, then generating, all before any network I/O), dispatches one
// executor call per slot, and returns the batch ID without waiting. Slots are
// only created when validation passes; a rejected call leaves no trace.
func (o *Orchestrator) StartBatch(req BatchRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", newError(ErrValidation, "Prompt must not be empty.")
	}
	if req.ImageCount < 1 || req.ImageCount > o.maxImages {
		return "", newError(ErrValidation, fmt.Sprintf("Image count must be between 1 and %d, got %d.", o.maxImages, req.ImageCount))
	}

	refs := make([]Reference, 0, len(req.ReferenceKeys)+len(req.ReferenceFiles))
	for _, key := range req.ReferenceKeys {
		refs = append(refs, Reference{StorageKey: key})
	}
	refs = append(refs, req.ReferenceFiles...)

	batchID := uuid.NewString()
	now := time.Now()

	o.mu.Lock()
	created := make([]*Slot, 0, req.ImageCount)
	for i := 0; i < req.ImageCount; i++ {
		slot := &Slot{
			ID:         uuid.NewString(),
			BatchID:    batchID,
			ImageIndex: i,
			Prompt:     req.Prompt,
			Status:     StatusPending,
		}
		o.slots[slot.ID] = slot
		o.order = append(o.order, slot.ID)
		created = append(created, slot)
	}
	// All slots flip to generating before any request is dispatched, so the
	// UI can render N placeholders immediately.
	for _, slot := range created {
		slot.Status = StatusGenerating
		slot.StartTime = now
		o.params[slot.ID] = GenerateParams{
			Prompt:     req.Prompt,
			APIKey:     req.APIKey,
			References: refs,
			RequestID:  slot.ID,
		}
	}
	for _, slot := range created {
		o.dispatchLocked(slot.ID)
	}
	o.mu.Unlock()

	o.logger.Info().
		Str("batch_id", batchID).
		Int("image_count", req.ImageCount).
		Int("references", len(refs)).
		Msg("imagegen: batch started")
	return batchID, nil
}

// dispatchLocked fires the executor goroutine for the slot's current attempt.
// Callers must hold o.mu.
func (o *Orchestrator) dispatchLocked(slotID string) {
	o.attempts[slotID]++
	attempt := o.attempts[slotID]
	params := o.params[slotID]

	ctx, cancel := context.WithCancel(context.Background())
	o.cancels[slotID] = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		img, err := o.exec.Generate(ctx, params)
		o.complete(slotID, attempt, img, err)
	}()
}

// complete applies one executor result to exactly its own slot. Results from
// superseded attempts (cancelled then retried) are dropped.
func (o *Orchestrator) complete(slotID string, attempt int, img *StoredImage, err error) {
	o.mu.Lock()

	slot, ok := o.slots[slotID]
	if !ok || attempt != o.attempts[slotID] || slot.Status != StatusGenerating {
		o.mu.Unlock()
		return
	}
	delete(o.cancels, slotID)

	if err != nil {
		slot.Status = StatusError
		slot.Error = err.Error()
		slot.Image = nil
		if genErr, ok := err.(*Error); ok {
			slot.Error = genErr.Message
		}
		batchID := slot.BatchID
		o.mu.Unlock()
		o.logger.Warn().
			Str("slot_id", slotID).
			Str("batch_id", batchID).
			Str("kind", string(KindOf(err))).
			Msg("imagegen: slot failed")
		return
	}

	slot.Status = StatusCompleted
	slot.Image = img
	slot.Error = ""
	batchID := slot.BatchID
	started := slot.StartTime
	o.mu.Unlock()

	// The hook may call back into the orchestrator, so it runs unlocked.
	if o.onComplete != nil {
		o.onComplete(*img)
	}
	o.logger.Info().
		Str("slot_id", slotID).
		Str("batch_id", batchID).
		Str("storage_key", img.StorageKey).
		Dur("elapsed", time.Since(started)).
		Msg("imagegen: slot completed")
}

// Cancel aborts a generating slot: the in-flight request context is
// cancelled and the slot transitions to error with the fixed cancellation
// message. Terminal slots are left untouched.
func (o *Orchestrator) Cancel(slotID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	slot, ok := o.slots[slotID]
	if !ok || slot.Status != StatusGenerating {
		return false
	}
	if cancel, ok := o.cancels[slotID]; ok {
		cancel()
		delete(o.cancels, slotID)
	}
	slot.Status = StatusError
	slot.Error = cancelledMessage
	slot.Image = nil
	o.logger.Info().Str("slot_id", slotID).Msg("imagegen: slot cancelled")
	return true
}

// Retry re-runs a failed slot from scratch: back to generating with a fresh
// StartTime, prior error cleared, same prompt and references as the original
// attempt.
func (o *Orchestrator) Retry(slotID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	slot, ok := o.slots[slotID]
	if !ok || slot.Status != StatusError {
		return false
	}
	slot.Status = StatusGenerating
	slot.StartTime = time.Now()
	slot.Error = ""
	slot.Image = nil
	o.dispatchLocked(slotID)
	o.logger.Info().Str("slot_id", slotID).Msg("imagegen: slot retried")
	return true
}

// Slot returns a copy of one slot.
func (o *Orchestrator) Slot(slotID string) (Slot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	slot, ok := o.slots[slotID]
	if !ok {
		return Slot{}, false
	}
	return cloneSlot(slot), true
}

// Slots returns copies of all slots in creation order.
func (o *Orchestrator) Slots() []Slot {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Slot, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, cloneSlot(o.slots[id]))
	}
	return out
}

// HasActive reports whether any slot is still pending or generating. Derived
// from the slot set on every call, never tracked separately.
func (o *Orchestrator) HasActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, slot := range o.slots {
		if slot.Status == StatusPending || slot.Status == StatusGenerating {
			return true
		}
	}
	return false
}

// CompletedImages lists the images of all completed slots in creation order.
func (o *Orchestrator) CompletedImages() []StoredImage {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []StoredImage
	for _, id := range o.order {
		slot := o.slots[id]
		if slot.Status == StatusCompleted && slot.Image != nil {
			out = append(out, *slot.Image)
		}
	}
	return out
}

// Wait blocks until every dispatched executor goroutine has reported. Used
// by tests and graceful shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func cloneSlot(s *Slot) Slot {
	out := *s
	if s.Image != nil {
		img := *s.Image
		out.Image = &img
	}
	return out
}
