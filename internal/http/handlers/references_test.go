package handlers_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"studio/internal/http/handlers"
	"studio/internal/imagegen"
	"studio/internal/uploads"
)

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, data := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		contentType := "image/png"
		if strings.HasSuffix(name, ".pdf") {
			contentType = "application/pdf"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart error: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestReferencesUploadMixedResults(t *testing.T) {
	_, handler := newTestApp(t, generatorFunc(succeedingGenerator))

	body, contentType := multipartBody(t, map[string][]byte{
		"ok-1.png": []byte("small"),
		"ok-2.png": []byte("also small"),
		"doc.pdf":  []byte("not an image"),
		"big.png":  make([]byte, 4096), // over the 1 KiB test cap
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/references", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var result uploads.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Uploaded) != 2 || len(result.Failed) != 2 {
		t.Fatalf("unexpected result: %d uploaded %d failed", len(result.Uploaded), len(result.Failed))
	}
	for _, img := range result.Uploaded {
		if !strings.HasPrefix(img.StorageKey, imagegen.ReferencePrefix) {
			t.Fatalf("key outside namespace: %q", img.StorageKey)
		}
	}
}

func TestReferencesUploadRequiresFiles(t *testing.T) {
	_, handler := newTestApp(t, generatorFunc(succeedingGenerator))

	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/references", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReferencesListAfterUpload(t *testing.T) {
	_, handler := newTestApp(t, generatorFunc(succeedingGenerator))

	body, contentType := multipartBody(t, map[string][]byte{"a.png": []byte("x")})
	req := httptest.NewRequest(http.MethodPost, "/v1/references", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/references", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var resp struct {
		References []handlers.ReferenceInfo `json:"references"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.References) != 1 || resp.References[0].ContentType != "image/png" {
		t.Fatalf("unexpected listing: %#v", resp.References)
	}
}
