package view

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"studio/internal/blobstore"
	"studio/internal/infra"
)

const (
	// Objects above this size are rejected for inline preview instead of
	// being silently truncated.
	maxInlineBytes = 5 * 1024 * 1024

	defaultCacheTTL   = 30 * time.Minute
	defaultPresignTTL = 15 * time.Minute
)

// ErrTooLarge is returned for objects over the inline preview cap. The UI
// treats it as a per-image recoverable failure, never a batch failure.
var ErrTooLarge = errors.New("view: object too large for preview")

// Presigner is implemented by stores that can mint signed GET URLs. When the
// backing store supports it, resolution prefers a presigned URL over
// embedding the bytes.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// View is a display-ready resolution of one stored object: a URL for images,
// raw text for everything else.
type View struct {
	Key         string `json:"key"`
	URL         string `json:"url,omitempty"`
	Text        string `json:"text,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Store      blobstore.Store
	CacheTTL   time.Duration
	PresignTTL time.Duration
	Logger     *infra.Logger
}

// Resolver turns storage keys into display-ready URLs, caching results per
// key for a bounded window so repeated renders of the same image do not
// re-fetch. Concurrent requests for one key collapse into a single fetch.
type Resolver struct {
	store      blobstore.Store
	cacheTTL   time.Duration
	presignTTL time.Duration
	logger     *infra.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	view    *View
	expires time.Time
}

// NewResolver builds a Resolver over the given store.
func NewResolver(opts ResolverOptions) *Resolver {
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	presignTTL := opts.PresignTTL
	if presignTTL <= 0 {
		presignTTL = defaultPresignTTL
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Resolver{
		store:      opts.Store,
		cacheTTL:   cacheTTL,
		presignTTL: presignTTL,
		logger:     logger,
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}
}

// Resolve produces a display-ready view for the object at key.
func (r *Resolver) Resolve(ctx context.Context, key string) (*View, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("view: key is required")
	}

	if view, ok := r.cached(key); ok {
		return view, nil
	}

	result, err, _ := r.group.Do(key, func() (any, error) {
		// Re-check under the group: a concurrent caller may have populated
		// the cache while this one waited.
		if view, ok := r.cached(key); ok {
			return view, nil
		}
		// The fetch is shared across every waiter, so it must not die with
		// the first caller's request context.
		view, ttl, err := r.resolve(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[key] = cacheEntry{view: view, expires: r.now().Add(ttl)}
		r.mu.Unlock()
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*View), nil
}

// resolve builds the view and reports how long it may be cached.
func (r *Resolver) resolve(ctx context.Context, key string) (*View, time.Duration, error) {
	if presigner, ok := r.store.(Presigner); ok {
		return r.resolvePresigned(ctx, presigner, key)
	}

	obj, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, 0, fmt.Errorf("view: fetch %q: %w", key, err)
	}
	if obj.Size > maxInlineBytes {
		return nil, 0, fmt.Errorf("%w: %q is %d bytes (limit %d)", ErrTooLarge, key, obj.Size, maxInlineBytes)
	}

	view := &View{Key: key, ContentType: obj.ContentType, Size: obj.Size}
	if strings.HasPrefix(obj.ContentType, "image/") {
		view.URL = fmt.Sprintf("data:%s;base64,%s", obj.ContentType, base64.StdEncoding.EncodeToString(obj.Data))
	} else {
		view.Text = string(obj.Data)
	}
	r.logger.Debug().Str("key", key).Int64("bytes", obj.Size).Msg("view: resolved inline")
	return view, r.cacheTTL, nil
}

// resolvePresigned avoids pulling the full payload through the service: the
// size check rides on the object listing and the browser fetches the bytes
// straight from the bucket.
func (r *Resolver) resolvePresigned(ctx context.Context, presigner Presigner, key string) (*View, time.Duration, error) {
	infos, err := r.store.List(ctx, key)
	if err != nil {
		return nil, 0, fmt.Errorf("view: stat %q: %w", key, err)
	}
	var info *blobstore.ObjectInfo
	for i := range infos {
		if infos[i].Key == key {
			info = &infos[i]
			break
		}
	}
	if info == nil {
		return nil, 0, fmt.Errorf("view: fetch %q: %w", key, blobstore.ErrNotFound)
	}
	if info.Size > maxInlineBytes {
		return nil, 0, fmt.Errorf("%w: %q is %d bytes (limit %d)", ErrTooLarge, key, info.Size, maxInlineBytes)
	}

	url, err := presigner.PresignGet(ctx, key, r.presignTTL)
	if err != nil {
		return nil, 0, fmt.Errorf("view: presign %q: %w", key, err)
	}
	// The cached entry must not outlive the signature it carries.
	ttl := r.cacheTTL
	if r.presignTTL < ttl {
		ttl = r.presignTTL
	}
	r.logger.Debug().Str("key", key).Msg("view: resolved presigned")
	return &View{Key: key, URL: url, ContentType: info.ContentType, Size: info.Size}, ttl, nil
}

func (r *Resolver) cached(key string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[key]
	if !ok || r.now().After(entry.expires) {
		delete(r.cache, key)
		return nil, false
	}
	return entry.view, true
}
