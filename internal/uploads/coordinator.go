package uploads

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studio/internal/blobstore"
	"studio/internal/imagegen"
	"studio/internal/infra"
)

// File is one locally selected file handed to the coordinator.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Failure records why one file could not be uploaded.
type Failure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result separates successes from failures so the caller can proceed with a
// partial reference set.
type Result struct {
	Uploaded []imagegen.StoredImage `json:"uploaded"`
	Failed   []Failure              `json:"failed"`
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Store    blobstore.Store
	MaxBytes int64
	Logger   *infra.Logger
}

// Coordinator uploads reference images into the reference_image/ namespace.
// Files upload concurrently and independently: one failure never blocks or
// invalidates its siblings.
type Coordinator struct {
	store    blobstore.Store
	maxBytes int64
	logger   *infra.Logger
}

// NewCoordinator builds a Coordinator over the given store.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Coordinator{store: opts.Store, maxBytes: maxBytes, logger: logger}
}

// Upload validates and stores each file, returning per-file outcomes. The
// result preserves nothing about ordering between uploaded and failed; keys
// are collision-resistant so concurrent writes need no coordination.
func (c *Coordinator) Upload(ctx context.Context, files []File) Result {
	type outcome struct {
		index int
		image *imagegen.StoredImage
		fail  *Failure
	}

	outcomes := make([]outcome, len(files))
	g, ctx := errgroup.WithContext(ctx)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			out := outcome{index: i}
			img, err := c.uploadOne(ctx, file)
			if err != nil {
				out.fail = &Failure{Name: file.Name, Reason: err.Error()}
			} else {
				out.image = img
			}
			outcomes[i] = out
			return nil
		})
	}
	// Workers never return errors; failures are per-file data.
	_ = g.Wait()

	var res Result
	for _, out := range outcomes {
		switch {
		case out.image != nil:
			res.Uploaded = append(res.Uploaded, *out.image)
		case out.fail != nil:
			res.Failed = append(res.Failed, *out.fail)
		}
	}
	c.logger.Info().
		Int("uploaded", len(res.Uploaded)).
		Int("failed", len(res.Failed)).
		Msg("uploads: reference batch finished")
	return res
}

func (c *Coordinator) uploadOne(ctx context.Context, file File) (*imagegen.StoredImage, error) {
	if int64(len(file.Data)) > c.maxBytes {
		return nil, fmt.Errorf("file is too large: %d bytes (maximum %d)", len(file.Data), c.maxBytes)
	}
	if !imagegen.AllowedFormat(file.ContentType) {
		return nil, fmt.Errorf("unsupported file type %q (allowed: jpeg, png, webp, gif)", file.ContentType)
	}

	ext := filepath.Ext(file.Name)
	if ext == "" {
		ext = imagegen.ExtensionFor(file.ContentType)
	}
	key := imagegen.NewStorageKey(imagegen.ReferencePrefix, ext)

	opts := blobstore.PutOptions{
		ContentType: file.ContentType,
		Metadata: map[string]string{
			"original-name": file.Name,
			"uploaded-at":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := c.store.Put(ctx, key, file.Data, opts); err != nil {
		c.logger.Warn().Err(err).Str("file", file.Name).Msg("uploads: store write failed")
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	return &imagegen.StoredImage{
		ID:           uuid.NewString(),
		StorageKey:   key,
		Filename:     filepath.Base(key),
		OriginalName: file.Name,
		Format:       file.ContentType,
		Size:         int64(len(file.Data)),
		Kind:         imagegen.KindReference,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
