package imagegen

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studio/internal/blobstore"
	"studio/internal/infra"
	"studio/internal/providers/genai"
)

const metadataPromptLimit = 256

// ImageGenerator is the slice of the Gemini client the executor needs.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error)
	Model() string
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Client        ImageGenerator
	Store         blobstore.Store
	Timeout       time.Duration
	MaxReferences int
	MaxRefBytes   int64
	Logger        *infra.Logger
}

// Executor performs exactly one generation call and normalizes the outcome:
// validate, call the model, persist the returned bytes, hand back a
// StoredImage. Batching is the orchestrator's job; the executor never asks
// for more than one output image.
type Executor struct {
	client        ImageGenerator
	store         blobstore.Store
	timeout       time.Duration
	maxReferences int
	maxRefBytes   int64
	logger        *infra.Logger
}

// GenerateParams is the input for one executor run.
type GenerateParams struct {
	Prompt     string
	APIKey     string
	References []Reference
	RequestID  string
}

// NewExecutor wires an Executor with defaults mirroring the service config.
func NewExecutor(opts ExecutorOptions) *Executor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxRefs := opts.MaxReferences
	if maxRefs <= 0 {
		maxRefs = 5
	}
	maxBytes := opts.MaxRefBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Executor{
		client:        opts.Client,
		store:         opts.Store,
		timeout:       timeout,
		maxReferences: maxRefs,
		maxRefBytes:   maxBytes,
		logger:        logger,
	}
}

// Generate runs one generation request. All validation happens before any
// network call; violations fail the whole call with a message naming the
// offending file or parameter.
func (e *Executor) Generate(ctx context.Context, params GenerateParams) (*StoredImage, error) {
	if err := ValidateAPIKey(params.APIKey); err != nil {
		return nil, err
	}
	if err := validateReferences(params.References, e.maxReferences, e.maxRefBytes); err != nil {
		return nil, err
	}

	refs, err := e.resolveReferences(ctx, params.References)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	asset, err := e.client.GenerateImage(ctx, genai.ImageRequest{
		APIKey:     params.APIKey,
		Prompt:     params.Prompt,
		References: refs,
		RequestID:  params.RequestID,
	})
	if err != nil {
		genErr := classifyProviderError(err)
		e.logger.Warn().
			Err(err).
			Str("request_id", params.RequestID).
			Str("kind", string(genErr.Kind)).
			Msg("imagegen: generation call failed")
		return nil, genErr
	}
	if asset == nil || len(asset.Data) == 0 {
		return nil, newError(ErrNoImage, "No image returned by the model. Try rephrasing the prompt.")
	}

	format := asset.MimeType
	if format == "" {
		format = "image/png"
	}
	now := time.Now().UTC()
	key := NewStorageKey(GenerationsPrefix, ExtensionFor(format))
	putOpts := blobstore.PutOptions{
		ContentType: format,
		Metadata: map[string]string{
			"prompt":       truncate(params.Prompt, metadataPromptLimit),
			"generated-at": now.Format(time.RFC3339),
			"model":        e.client.Model(),
		},
	}
	if err := e.store.Put(ctx, key, asset.Data, putOpts); err != nil {
		return nil, wrapError(ErrStorage, "Failed to store the generated image.", err)
	}

	img := &StoredImage{
		ID:         uuid.NewString(),
		StorageKey: key,
		Format:     format,
		Size:       int64(len(asset.Data)),
		Kind:       KindGenerated,
		CreatedAt:  now,
	}
	e.logger.Info().
		Str("request_id", params.RequestID).
		Str("storage_key", key).
		Int64("bytes", img.Size).
		Msg("imagegen: image generated and stored")
	return img, nil
}

// resolveReferences turns the mixed reference set into inline payloads,
// fetching stored keys from the blob store and validating fetched bytes the
// same way local ones were validated up front.
func (e *Executor) resolveReferences(ctx context.Context, refs []Reference) ([]genai.InlineImage, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]genai.InlineImage, 0, len(refs))
	for _, ref := range refs {
		if ref.StorageKey == "" {
			out = append(out, genai.InlineImage{MimeType: ref.MimeType, Data: ref.Data})
			continue
		}
		obj, err := e.store.Get(ctx, ref.StorageKey)
		if err != nil {
			return nil, wrapError(ErrValidation, fmt.Sprintf("Reference image %q could not be loaded.", ref.StorageKey), err)
		}
		mimeType := obj.ContentType
		if mimeType == "" {
			mimeType = ref.MimeType
		}
		if err := validateReferenceBytes(ref.StorageKey, mimeType, obj.Size, e.maxRefBytes); err != nil {
			return nil, err
		}
		out = append(out, genai.InlineImage{MimeType: mimeType, Data: obj.Data})
	}
	return out, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
