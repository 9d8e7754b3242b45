package uploads

import (
	"context"
	"strings"
	"testing"

	"studio/internal/blobstore"
	"studio/internal/imagegen"
)

func newTestCoordinator(t *testing.T, maxBytes int64) (*Coordinator, *blobstore.FileStore) {
	t.Helper()
	store, err := blobstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return NewCoordinator(CoordinatorOptions{Store: store, MaxBytes: maxBytes}), store
}

func pngFile(name string, size int) File {
	return File{Name: name, ContentType: "image/png", Data: make([]byte, size)}
}

func TestUploadFiveFilesConcurrently(t *testing.T) {
	coord, store := newTestCoordinator(t, 1024)

	files := []File{
		pngFile("a.png", 10),
		pngFile("b.png", 20),
		pngFile("c.png", 30),
		pngFile("d.png", 40),
		pngFile("e.png", 50),
	}
	res := coord.Upload(context.Background(), files)
	if len(res.Uploaded) != 5 || len(res.Failed) != 0 {
		t.Fatalf("expected 5 uploads, got %d uploaded %d failed", len(res.Uploaded), len(res.Failed))
	}

	keys := make(map[string]struct{})
	for _, img := range res.Uploaded {
		if _, dup := keys[img.StorageKey]; dup {
			t.Fatalf("duplicate storage key %q", img.StorageKey)
		}
		keys[img.StorageKey] = struct{}{}
		if !strings.HasPrefix(img.StorageKey, imagegen.ReferencePrefix) {
			t.Fatalf("key %q outside reference namespace", img.StorageKey)
		}
		if img.Kind != imagegen.KindReference || img.OriginalName == "" {
			t.Fatalf("unexpected StoredImage: %+v", img)
		}
		if _, err := store.Get(context.Background(), img.StorageKey); err != nil {
			t.Fatalf("uploaded object missing: %v", err)
		}
	}
}

func TestUploadIsolatesPerFileFailures(t *testing.T) {
	coord, _ := newTestCoordinator(t, 100)

	files := []File{
		pngFile("ok-1.png", 10),
		pngFile("huge.png", 500),
		pngFile("ok-2.png", 20),
		{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("pdf")},
		pngFile("ok-3.png", 30),
	}
	res := coord.Upload(context.Background(), files)
	if len(res.Uploaded) != 3 {
		t.Fatalf("expected 3 uploads, got %d", len(res.Uploaded))
	}
	if len(res.Failed) != 2 {
		t.Fatalf("expected 2 failures, got %d: %#v", len(res.Failed), res.Failed)
	}

	reasons := make(map[string]string)
	for _, fail := range res.Failed {
		reasons[fail.Name] = fail.Reason
	}
	if !strings.Contains(reasons["huge.png"], "too large") {
		t.Fatalf("size failure reason = %q", reasons["huge.png"])
	}
	if !strings.Contains(reasons["doc.pdf"], "unsupported file type") {
		t.Fatalf("type failure reason = %q", reasons["doc.pdf"])
	}
}

func TestUploadPreservesMetadata(t *testing.T) {
	coord, store := newTestCoordinator(t, 1024)

	res := coord.Upload(context.Background(), []File{{
		Name:        "holiday photo.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("jpeg-bytes"),
	}})
	if len(res.Uploaded) != 1 {
		t.Fatalf("upload failed: %#v", res.Failed)
	}
	img := res.Uploaded[0]
	if !strings.HasSuffix(img.StorageKey, ".jpg") {
		t.Fatalf("original extension lost: %q", img.StorageKey)
	}

	obj, err := store.Get(context.Background(), img.StorageKey)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if obj.ContentType != "image/jpeg" {
		t.Fatalf("content type mismatch: %q", obj.ContentType)
	}
	if obj.Metadata["original-name"] != "holiday photo.jpg" {
		t.Fatalf("metadata mismatch: %#v", obj.Metadata)
	}
}

func TestUploadEmptyBatch(t *testing.T) {
	coord, _ := newTestCoordinator(t, 1024)
	res := coord.Upload(context.Background(), nil)
	if len(res.Uploaded) != 0 || len(res.Failed) != 0 {
		t.Fatalf("empty batch should yield empty result: %#v", res)
	}
}
