package imagegen

import (
	"fmt"
	"strings"
)

const (
	apiKeyPrefix = "AIza"
	apiKeyLength = 39
)

// ValidateAPIKey checks the Gemini key format before any network call: a
// fixed 39-character token with the fixed AIza prefix. Deviations fail fast
// with distinct messages and zero network cost.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return newError(ErrCredential, "API key is required.")
	}
	if !strings.HasPrefix(key, apiKeyPrefix) {
		return newError(ErrCredential, fmt.Sprintf("API key must start with %q.", apiKeyPrefix))
	}
	if len(key) != apiKeyLength {
		return newError(ErrCredential, fmt.Sprintf("API key must be exactly %d characters, got %d.", apiKeyLength, len(key)))
	}
	return nil
}

// validateReferences checks count, size, and format of the reference set.
// Storage-key references are checked after fetch (their bytes are not known
// yet); in-memory references are checked here.
func validateReferences(refs []Reference, maxCount int, maxBytes int64) error {
	if len(refs) > maxCount {
		return newError(ErrValidation, fmt.Sprintf("Too many reference images: %d (maximum %d).", len(refs), maxCount))
	}
	for _, ref := range refs {
		if ref.StorageKey != "" {
			continue
		}
		if err := validateReferenceBytes(ref.Name, ref.MimeType, int64(len(ref.Data)), maxBytes); err != nil {
			return err
		}
	}
	return nil
}

func validateReferenceBytes(name, mimeType string, size, maxBytes int64) error {
	label := name
	if label == "" {
		label = "reference image"
	}
	if size > maxBytes {
		return newError(ErrValidation, fmt.Sprintf("%s is too large: %d bytes (maximum %d).", label, size, maxBytes))
	}
	if !AllowedFormat(mimeType) {
		return newError(ErrValidation, fmt.Sprintf("%s has unsupported type %q (allowed: jpeg, png, webp, gif).", label, mimeType))
	}
	return nil
}
