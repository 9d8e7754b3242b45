package imagegen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime"
	"strings"
	"time"
)

// Status tracks a slot through its lifecycle:
// pending -> generating -> {completed | error}, with error -> generating on a
// user-initiated retry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Kind distinguishes user-supplied reference images from model outputs.
type Kind string

const (
	KindReference Kind = "reference"
	KindGenerated Kind = "generated"
)

// Storage namespaces. Enforced by callers of the blob store, not the store.
const (
	ReferencePrefix   = "reference_image/"
	GenerationsPrefix = "generations/"
)

// StoredImage is a blob-store-backed image reference. It is created the
// moment its bytes are durably written and never mutated afterwards.
type StoredImage struct {
	ID           string    `json:"id"`
	StorageKey   string    `json:"storage_key"`
	Filename     string    `json:"filename,omitempty"`
	OriginalName string    `json:"original_name,omitempty"`
	Format       string    `json:"format"`
	Size         int64     `json:"size"`
	Kind         Kind      `json:"kind"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

// Slot is one requested output image within a batch. Image and Error are
// mutually exclusive and only ever set in a terminal status.
type Slot struct {
	ID         string       `json:"id"`
	BatchID    string       `json:"batch_id"`
	ImageIndex int          `json:"image_index"`
	Prompt     string       `json:"prompt"`
	Status     Status       `json:"status"`
	StartTime  time.Time    `json:"start_time,omitzero"`
	Image      *StoredImage `json:"image,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Reference is one reference image handed to the executor, either as raw
// bytes (fresh local upload) or as a previously stored key.
type Reference struct {
	StorageKey string
	MimeType   string
	Data       []byte
	Name       string
}

var allowedFormats = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// AllowedFormat reports whether the MIME type is on the image allow-list.
func AllowedFormat(mimeType string) bool {
	_, ok := allowedFormats[normalizeMime(mimeType)]
	return ok
}

// ExtensionFor maps an allow-listed MIME type to a file extension, falling
// back to .png for anything unrecognized.
func ExtensionFor(mimeType string) string {
	if ext, ok := allowedFormats[normalizeMime(mimeType)]; ok {
		return ext
	}
	return ".png"
}

func normalizeMime(mimeType string) string {
	parsed, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return parsed
}

// NewStorageKey builds a collision-resistant key under the given namespace:
// unix-millisecond timestamp plus a random suffix plus the extension. Key
// uniqueness is what lets concurrent writers skip coordination entirely.
func NewStorageKey(prefix, ext string) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s%d-%s%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(suffix), ext)
}
