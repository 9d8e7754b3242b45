package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const sidecarSuffix = ".meta.json"

// FileStore persists objects onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available. Content type and custom metadata live in a JSON sidecar next to
// each object.
type FileStore struct {
	basePath string
}

type sidecar struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("blobstore: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Put persists the provided bytes at the given key. Keys are cleaned to
// prevent directory traversal.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	if s == nil {
		return errors.New("blobstore: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("blobstore: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("blobstore: write object: %w", err)
	}
	meta, err := json.Marshal(sidecar{ContentType: opts.ContentType, Metadata: opts.Metadata})
	if err != nil {
		return fmt.Errorf("blobstore: encode metadata: %w", err)
	}
	if err := os.WriteFile(fullPath+sidecarSuffix, meta, 0o644); err != nil {
		return fmt.Errorf("blobstore: write metadata: %w", err)
	}
	return nil
}

// Get reads back an object and its recorded metadata.
func (s *FileStore) Get(ctx context.Context, key string) (*Object, error) {
	if s == nil {
		return nil, errors.New("blobstore: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: read object: %w", err)
	}

	obj := &Object{Key: cleanKey, Data: data, Size: int64(len(data))}
	if raw, err := os.ReadFile(fullPath + sidecarSuffix); err == nil {
		var sc sidecar
		if err := json.Unmarshal(raw, &sc); err == nil {
			obj.ContentType = sc.ContentType
			obj.Metadata = sc.Metadata
		}
	}
	return obj, nil
}

// List walks the tree under prefix and reports every stored object.
func (s *FileStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if s == nil {
		return nil, errors.New("blobstore: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []ObjectInfo
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, sidecarSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entry := ObjectInfo{Key: key, Size: info.Size()}
		if raw, err := os.ReadFile(path + sidecarSuffix); err == nil {
			var sc sidecar
			if json.Unmarshal(raw, &sc) == nil {
				entry.ContentType = sc.ContentType
			}
		}
		out = append(out, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: list objects: %w", err)
	}
	return out, nil
}

// Delete removes an object and its metadata sidecar. Deleting a missing key
// is not an error.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return errors.New("blobstore: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blobstore: delete object: %w", err)
	}
	if err := os.Remove(fullPath + sidecarSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blobstore: delete metadata: %w", err)
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("blobstore: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("blobstore: invalid key")
	}
	return cleaned, nil
}

var _ Store = (*FileStore)(nil)
