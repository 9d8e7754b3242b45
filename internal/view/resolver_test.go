package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studio/internal/blobstore"
)

// countingStore wraps a Store and counts Get calls.
type countingStore struct {
	blobstore.Store
	gets atomic.Int64
}

func (c *countingStore) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	c.gets.Add(1)
	return c.Store.Get(ctx, key)
}

// sizedStore reports arbitrary object sizes without holding the bytes.
type sizedStore struct {
	blobstore.Store
	size int64
}

func (s *sizedStore) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	return &blobstore.Object{Key: key, ContentType: "image/png", Size: s.size}, nil
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	fs, err := blobstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return &countingStore{Store: fs}
}

func TestResolveImageReturnsDataURL(t *testing.T) {
	store := newCountingStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "generations/a.png", []byte("png-bytes"), blobstore.PutOptions{ContentType: "image/png"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	resolver := NewResolver(ResolverOptions{Store: store})
	view, err := resolver.Resolve(ctx, "generations/a.png")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !strings.HasPrefix(view.URL, "data:image/png;base64,") {
		t.Fatalf("expected data URL, got %q", view.URL)
	}
	if view.Text != "" || view.ContentType != "image/png" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestResolveNonImageReturnsText(t *testing.T) {
	store := newCountingStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "notes/readme.txt", []byte("plain contents"), blobstore.PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	resolver := NewResolver(ResolverOptions{Store: store})
	view, err := resolver.Resolve(ctx, "notes/readme.txt")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if view.URL != "" || view.Text != "plain contents" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestResolveRejectsOversizedObjects(t *testing.T) {
	resolver := NewResolver(ResolverOptions{Store: &sizedStore{size: 6 * 1024 * 1024}})
	_, err := resolver.Resolve(context.Background(), "generations/huge.png")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestResolveCachesWithinWindow(t *testing.T) {
	store := newCountingStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "generations/a.png", []byte("x"), blobstore.PutOptions{ContentType: "image/png"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	resolver := NewResolver(ResolverOptions{Store: store})
	for i := 0; i < 5; i++ {
		if _, err := resolver.Resolve(ctx, "generations/a.png"); err != nil {
			t.Fatalf("Resolve %d error: %v", i, err)
		}
	}
	if got := store.gets.Load(); got != 1 {
		t.Fatalf("expected 1 underlying fetch, got %d", got)
	}
}

func TestResolveRefetchesAfterExpiry(t *testing.T) {
	store := newCountingStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "generations/a.png", []byte("x"), blobstore.PutOptions{ContentType: "image/png"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	resolver := NewResolver(ResolverOptions{Store: store, CacheTTL: 30 * time.Minute})
	current := time.Now()
	resolver.now = func() time.Time { return current }

	if _, err := resolver.Resolve(ctx, "generations/a.png"); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	current = current.Add(31 * time.Minute)
	if _, err := resolver.Resolve(ctx, "generations/a.png"); err != nil {
		t.Fatalf("Resolve after expiry error: %v", err)
	}
	if got := store.gets.Load(); got != 2 {
		t.Fatalf("expected 2 underlying fetches, got %d", got)
	}
}

func TestResolveErrorsAreNotCached(t *testing.T) {
	store := newCountingStore(t)
	resolver := NewResolver(ResolverOptions{Store: store})

	if _, err := resolver.Resolve(context.Background(), "generations/missing.png"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Put(context.Background(), "generations/missing.png", []byte("x"), blobstore.PutOptions{ContentType: "image/png"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), "generations/missing.png"); err != nil {
		t.Fatalf("expected success after object appeared, got %v", err)
	}
}

func TestResolveCollapsesConcurrentFetches(t *testing.T) {
	store := newCountingStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "generations/a.png", []byte("x"), blobstore.PutOptions{ContentType: "image/png"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	resolver := NewResolver(ResolverOptions{Store: store})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := resolver.Resolve(ctx, "generations/a.png"); err != nil {
				t.Errorf("Resolve error: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := store.gets.Load(); got != 1 {
		t.Fatalf("expected 1 underlying fetch across concurrent callers, got %d", got)
	}
}

// presignStore implements Presigner on top of a sized listing and numbers
// each signature it mints.
type presignStore struct {
	blobstore.Store
	size  int64
	signs int
}

func (p *presignStore) List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	return []blobstore.ObjectInfo{{Key: prefix, Size: p.size, ContentType: "image/png"}}, nil
}

func (p *presignStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	p.signs++
	return fmt.Sprintf("https://bucket.example.com/%s?sig=%d", key, p.signs), nil
}

func TestResolvePrefersPresignedURLs(t *testing.T) {
	resolver := NewResolver(ResolverOptions{Store: &presignStore{size: 1024}})
	view, err := resolver.Resolve(context.Background(), "generations/a.png")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !strings.HasPrefix(view.URL, "https://bucket.example.com/generations/a.png") {
		t.Fatalf("expected presigned URL, got %q", view.URL)
	}
}

func TestResolvePresignedHonorsSizeCap(t *testing.T) {
	resolver := NewResolver(ResolverOptions{Store: &presignStore{size: 10 * 1024 * 1024}})
	if _, err := resolver.Resolve(context.Background(), "generations/huge.png"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestResolvePresignedEntryExpiresWithSignature(t *testing.T) {
	store := &presignStore{size: 1024}
	resolver := NewResolver(ResolverOptions{
		Store:      store,
		CacheTTL:   30 * time.Minute,
		PresignTTL: 15 * time.Minute,
	})
	current := time.Now()
	resolver.now = func() time.Time { return current }
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "generations/a.png")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	// Within the signature lifetime the cached URL is served as-is.
	current = current.Add(10 * time.Minute)
	cached, err := resolver.Resolve(ctx, "generations/a.png")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if cached.URL != first.URL || store.signs != 1 {
		t.Fatalf("expected cached signature, got %q after %d signs", cached.URL, store.signs)
	}

	// Past the signature lifetime (but inside the generic cache window) a
	// stale URL would 403 at the bucket, so a fresh one must be minted.
	current = current.Add(10 * time.Minute)
	fresh, err := resolver.Resolve(ctx, "generations/a.png")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if fresh.URL == first.URL || store.signs != 2 {
		t.Fatalf("expected a re-signed URL, got %q after %d signs", fresh.URL, store.signs)
	}
}

func TestResolveFetchSurvivesCallerCancellation(t *testing.T) {
	store := newCountingStore(t)
	if err := store.Put(context.Background(), "generations/a.png", []byte("x"), blobstore.PutOptions{ContentType: "image/png"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	resolver := NewResolver(ResolverOptions{Store: store})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The fetch is shared between concurrent waiters, so one caller's
	// cancellation must not fail it for everyone.
	view, err := resolver.Resolve(ctx, "generations/a.png")
	if err != nil {
		t.Fatalf("Resolve with cancelled caller error: %v", err)
	}
	if !strings.HasPrefix(view.URL, "data:image/png;base64,") {
		t.Fatalf("unexpected view: %+v", view)
	}
}
