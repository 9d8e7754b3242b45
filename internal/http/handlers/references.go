package handlers

import (
	"io"
	"net/http"

	"studio/internal/imagegen"
	"studio/internal/uploads"
)

const multipartMemoryLimit = 32 << 20

// ReferencesUpload accepts a multipart batch of reference images under the
// "files" field. Per-file failures come back alongside the successes; the
// caller proceeds with whatever uploaded.
func (a *App) ReferencesUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "no files provided")
		return
	}

	var files []uploads.File
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unreadable file "+header.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unreadable file "+header.Filename)
			return
		}
		files = append(files, uploads.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	result := a.Uploads.Upload(r.Context(), files)
	for range result.Uploaded {
		a.count(r.Context(), "references_uploaded")
	}
	if result.Uploaded == nil {
		result.Uploaded = []imagegen.StoredImage{}
	}
	if result.Failed == nil {
		result.Failed = []uploads.Failure{}
	}
	a.json(w, http.StatusOK, result)
}

type referenceInfo struct {
	StorageKey  string `json:"storage_key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// ReferencesList reports everything under the reference namespace, so a
// reloaded tab can rediscover previous uploads.
func (a *App) ReferencesList(w http.ResponseWriter, r *http.Request) {
	infos, err := a.Store.List(r.Context(), imagegen.ReferencePrefix)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: reference listing failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list reference images")
		return
	}
	out := make([]referenceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, referenceInfo{StorageKey: info.Key, Size: info.Size, ContentType: info.ContentType})
	}
	a.json(w, http.StatusOK, map[string]any{"references": out})
}
