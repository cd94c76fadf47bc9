package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/snipvault/internal/config"
	"github.com/hpungsan/snipvault/internal/db"
	"github.com/hpungsan/snipvault/internal/logging"
	"github.com/hpungsan/snipvault/internal/ops"
)

type noopLauncher struct{}

func (noopLauncher) Launch(context.Context) error { return nil }

// setupTest returns the API handler and its vault over a temp directory.
func setupTest(t *testing.T) (http.Handler, *ops.Vault) {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.StorageDir = filepath.Join(tmpDir, "uploads")
	cfg.CaptureDirs = []string{filepath.Join(tmpDir, "screenshots")}
	cfg.CaptureDeadline = config.Duration(100 * time.Millisecond)
	cfg.CaptureInterval = config.Duration(10 * time.Millisecond)

	v, err := ops.Open(database, cfg, tmpDir, logging.Discard())
	if err != nil {
		t.Fatalf("ops.Open: %v", err)
	}
	v.Capture.SetLauncher(noopLauncher{})

	return NewServer(v, "127.0.0.1", 0).Handler, v
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(fileField, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// --- Folders ---

func TestFolders_CreateListDelete(t *testing.T) {
	h, _ := setupTest(t)

	rec := doJSON(t, h, "POST", "/api/folders", map[string]string{"name": "Math"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[ops.CreateFolderOutput](t, rec)
	assert.Equal(t, "Math", created.Folder.Name)

	rec = doJSON(t, h, "GET", "/get-folders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ops.ListFoldersOutput](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.Folder.ID, list.Items[0].ID)

	rec = doJSON(t, h, "DELETE", "/api/folders/"+created.Folder.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, "DELETE", "/api/folders/"+created.Folder.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody[errorBody](t, rec).Error.Code)
}

func TestCreateFolder_Validation(t *testing.T) {
	h, _ := setupTest(t)

	rec := doJSON(t, h, "POST", "/api/folders", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeBody[errorBody](t, rec).Error.Code)

	rec = doJSON(t, h, "POST", "/api/folders", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestUploadFolder(t *testing.T) {
	h, _ := setupTest(t)

	body, ct := multipartBody(t,
		map[string]string{"folder_name": "Chemistry"},
		"files",
		map[string]string{"lab/notes.pdf": "one", "slides.pdf": "two"},
	)
	req := httptest.NewRequest("POST", "/upload-folder", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	out := decodeBody[ops.UploadFolderOutput](t, rec)
	assert.ElementsMatch(t, []string{"notes.pdf", "slides.pdf"}, out.Files)
}

// --- Documents ---

func TestUploadListServeDocument(t *testing.T) {
	h, _ := setupTest(t)

	body, ct := multipartBody(t, map[string]string{"folder": "Math"}, "file", map[string]string{"week1.pdf": "%PDF-1"})
	req := httptest.NewRequest("POST", "/upload-pdf", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decodeBody[ops.DocumentInfo](t, rec)
	assert.Equal(t, "http://127.0.0.1:5000/uploads/Math/week1.pdf", info.AccessURL)

	rec = doJSON(t, h, "GET", "/get-pdfs?folder=Math", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ops.ListDocumentsOutput](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "week1.pdf", list.Items[0].Filename)

	rec = doJSON(t, h, "GET", "/uploads/Math/week1.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = doJSON(t, h, "GET", "/uploads/Math/missing.pdf", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveEdited_DefaultFilename(t *testing.T) {
	h, v := setupTest(t)

	body, ct := multipartBody(t, map[string]string{"folder": "Math"}, "file", map[string]string{"blob": "edited"})
	req := httptest.NewRequest("POST", "/save-edited-pdf", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data, err := os.ReadFile(filepath.Join(v.Cfg.StorageDir, "Math", "edited.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "edited", string(data))
}

func TestUploadDocument_NoFilePart(t *testing.T) {
	h, _ := setupTest(t)
	body, ct := multipartBody(t, map[string]string{"folder": "Math"}, "file", nil)
	req := httptest.NewRequest("POST", "/upload-pdf", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Captures ---

func TestStartSnip_TimesOut(t *testing.T) {
	h, _ := setupTest(t)

	form := url.Values{"folder": {"Math"}}
	req := httptest.NewRequest("POST", "/start-snip", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Equal(t, "CAPTURE_TIMEOUT", decodeBody[errorBody](t, rec).Error.Code)
}

func TestAcquireCapture_JSON(t *testing.T) {
	h, v := setupTest(t)
	shots := v.Cfg.CaptureDirs[0]
	require.NoError(t, os.MkdirAll(shots, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(shots, "shot.png"), []byte("png"), 0644))

	rec := doJSON(t, h, "POST", "/api/captures", map[string]string{
		"folder":            "Math",
		"title":             "Board",
		"capture_timestamp": "2024-05-01T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decodeBody[ops.AcquireOutput](t, rec)
	assert.Equal(t, "Board", out.Capture.Title)

	rec = doJSON(t, h, "GET", "/api/captures?folder=Math", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ops.ListCapturesOutput](t, rec)
	require.Len(t, list.Items, 1)

	rec = doJSON(t, h, "GET", "/api/captures/"+out.Capture.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, "GET", "/uploads/Math/"+out.Capture.StoredFilename, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())

	rec = doJSON(t, h, "DELETE", "/api/captures/"+out.Capture.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, "GET", "/api/captures/"+out.Capture.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Derived documents ---

func TestDerived_CreateGetListFetch(t *testing.T) {
	h, _ := setupTest(t)

	rec := doJSON(t, h, "POST", "/api/derived", map[string]any{
		"source_filename": "lecture.pdf",
		"folder":          "Math",
		"highlights":      []any{map[string]any{"page": 2, "text": "theorem"}},
		"rendered_body":   "## Notes",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var doc struct {
		ID         string            `json:"id"`
		Highlights []json.RawMessage `json:"highlights"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Highlights, 1)
	assert.JSONEq(t, `{"page":2,"text":"theorem"}`, string(doc.Highlights[0]))

	rec = doJSON(t, h, "GET", "/api/derived/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, "GET", "/api/derived?folder=Physics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[ops.ListDerivedOutput](t, rec).Items)

	rec = doJSON(t, h, "GET", "/api/derived/"+doc.ID+"/rendered", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h2>Notes</h2>")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestDerived_EmptyHighlightsRejected(t *testing.T) {
	h, _ := setupTest(t)
	rec := doJSON(t, h, "POST", "/api/derived", map[string]any{"folder": "Math", "highlights": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchRendered_MissingFileIsNotFound(t *testing.T) {
	h, v := setupTest(t)
	doc, err := ops.CreateDerived(context.Background(), v, ops.CreateDerivedInput{
		Folder:     "Math",
		Highlights: []json.RawMessage{json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	require.NoError(t, os.Remove(doc.RenderedPath))

	rec := doJSON(t, h, "GET", "/api/derived/"+doc.ID+"/rendered", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Annotations ---

func TestAnnotations(t *testing.T) {
	h, _ := setupTest(t)

	for _, body := range []string{"a", "b"} {
		rec := doJSON(t, h, "POST", "/api/annotations", map[string]string{"document_name": "x.pdf", "body": body})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := doJSON(t, h, "GET", "/api/annotations?document_name=x.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[ops.ListAnnotationsOutput](t, rec)
	assert.Equal(t, []string{"a", "b"}, out.Annotations)

	rec = doJSON(t, h, "GET", "/api/annotations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Server plumbing ---

func TestSecurityHeaders(t *testing.T) {
	h, _ := setupTest(t)
	rec := doJSON(t, h, "GET", "/api/folders", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := setupTest(t)
	rec := doJSON(t, h, "PUT", "/api/folders", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeFile_TraversalRejected(t *testing.T) {
	h, v := setupTest(t)
	secret := filepath.Join(filepath.Dir(v.Cfg.StorageDir), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0600))

	req := httptest.NewRequest("GET", "/uploads/x/..%2Fsecret.txt", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "secret", rec.Body.String())
}
