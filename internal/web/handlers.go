package web

import (
	"encoding/json"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/ops"
)

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	vault *ops.Vault
	log   *slog.Logger
}

// --- Folders ---

// HandleListFolders handles GET /api/folders and GET /get-folders.
func (h *Handlers) HandleListFolders(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListFolders(r.Context(), h.vault)
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

type createFolderRequest struct {
	Name string `json:"name"`
}

// HandleCreateFolder handles POST /api/folders.
func (h *Handlers) HandleCreateFolder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[createFolderRequest](r)
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	out, err := ops.CreateFolder(r.Context(), h.vault, ops.CreateFolderInput{Name: req.Name})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, out)
}

// HandleDeleteFolder handles DELETE /api/folders/{id}.
func (h *Handlers) HandleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteFolder(r.Context(), h.vault, ops.DeleteFolderInput{ID: r.PathValue("id")})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleUploadFolder handles POST /upload-folder: multipart form with a
// "folder_name" field and one or more "files" parts.
func (h *Handlers) HandleUploadFolder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		renderError(w, h.log, r, errors.NewInvalidRequest("expected multipart form data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]ops.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			renderError(w, h.log, r, errors.NewInternal(err))
			return
		}
		defer f.Close()
		files = append(files, ops.UploadFile{Filename: baseName(fh), Body: f})
	}

	out, err := ops.UploadFolder(r.Context(), h.vault, ops.UploadFolderInput{
		Name:  r.FormValue("folder_name"),
		Files: files,
	})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, out)
}

// baseName strips any client-side directory from an uploaded file name
// (browsers send "dir/file.pdf" for folder uploads).
func baseName(fh *multipart.FileHeader) string {
	name := fh.Filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// --- Documents ---

// HandleUploadDocument handles POST /upload-pdf: multipart "file" plus
// an optional "folder".
func (h *Handlers) HandleUploadDocument(w http.ResponseWriter, r *http.Request) {
	h.uploadDocument(w, r, "")
}

// HandleSaveEdited handles POST /save-edited-pdf. The stored name comes
// from the "filename" field and defaults to edited.pdf.
func (h *Handlers) HandleSaveEdited(w http.ResponseWriter, r *http.Request) {
	h.uploadDocument(w, r, "edited.pdf")
}

func (h *Handlers) uploadDocument(w http.ResponseWriter, r *http.Request, defaultName string) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		renderError(w, h.log, r, errors.NewInvalidRequest("expected multipart form data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, fh, err := r.FormFile("file")
	if err != nil {
		renderError(w, h.log, r, errors.NewInvalidRequest("no file part"))
		return
	}
	defer f.Close()

	name := baseName(fh)
	if defaultName != "" {
		name = strings.TrimSpace(r.FormValue("filename"))
		if name == "" {
			name = defaultName
		}
	}

	out, err := ops.UploadDocument(r.Context(), h.vault, ops.UploadDocumentInput{
		Folder:   r.FormValue("folder"),
		Filename: name,
		Body:     f,
	})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleListDocuments handles GET /get-pdfs?folder=.
func (h *Handlers) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListDocuments(r.Context(), h.vault, ops.ListDocumentsInput{
		Folder: r.URL.Query().Get("folder"),
		Ext:    r.URL.Query().Get("ext"),
	})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleServeFile handles GET /uploads/{folder}/{filename} and
// GET /uploads/{filename}, the targets of derived access URLs.
func (h *Handlers) HandleServeFile(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	folder, filename := "", path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		folder, filename = path[:i], path[i+1:]
	}

	f, err := ops.OpenDocument(r.Context(), h.vault, ops.OpenDocumentInput{Folder: folder, Filename: filename})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		renderError(w, h.log, r, errors.NewInternal(err))
		return
	}
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

// --- Captures ---

type acquireRequest struct {
	Folder           string `json:"folder"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	CaptureTimestamp string `json:"capture_timestamp"`
}

// HandleAcquireCapture handles POST /start-snip and POST /api/captures.
// It blocks until a capture is stored, the deadline passes, or the client
// goes away. Accepts a JSON body or form fields.
func (h *Handlers) HandleAcquireCapture(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if isJSON(r) {
		var err error
		if req, err = decodeJSON[acquireRequest](r); err != nil {
			renderError(w, h.log, r, err)
			return
		}
	} else {
		req = acquireRequest{
			Folder:           r.FormValue("folder"),
			Title:            r.FormValue("title"),
			Description:      r.FormValue("description"),
			CaptureTimestamp: r.FormValue("capture_timestamp"),
		}
	}

	out, err := ops.AcquireCapture(r.Context(), h.vault, ops.AcquireInput{
		Folder:      req.Folder,
		Title:       req.Title,
		Description: req.Description,
		CapturedAt:  req.CaptureTimestamp,
	})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, out)
}

// HandleListCaptures handles GET /api/captures?folder=.
func (h *Handlers) HandleListCaptures(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListCaptures(r.Context(), h.vault, ops.ListCapturesInput{Folder: r.URL.Query().Get("folder")})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleGetCapture handles GET /api/captures/{id}.
func (h *Handlers) HandleGetCapture(w http.ResponseWriter, r *http.Request) {
	out, err := ops.GetCapture(r.Context(), h.vault, r.PathValue("id"))
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleDeleteCapture handles DELETE /api/captures/{id}.
func (h *Handlers) HandleDeleteCapture(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteCapture(r.Context(), h.vault, r.PathValue("id"))
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// --- Derived documents ---

type createDerivedRequest struct {
	SourceFilename  string            `json:"source_filename"`
	Folder          string            `json:"folder"`
	Highlights      []json.RawMessage `json:"highlights"`
	RenderedBody    string            `json:"rendered_body"`
	SourceReference string            `json:"source_reference"`
}

// HandleCreateDerived handles POST /api/derived.
func (h *Handlers) HandleCreateDerived(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[createDerivedRequest](r)
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	out, err := ops.CreateDerived(r.Context(), h.vault, ops.CreateDerivedInput{
		SourceFilename:  req.SourceFilename,
		Folder:          req.Folder,
		Highlights:      req.Highlights,
		RenderedBody:    req.RenderedBody,
		SourceReference: req.SourceReference,
	})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, out)
}

// HandleListDerived handles GET /api/derived?folder=.
func (h *Handlers) HandleListDerived(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListDerived(r.Context(), h.vault, ops.ListDerivedInput{Folder: r.URL.Query().Get("folder")})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleGetDerived handles GET /api/derived/{id}.
func (h *Handlers) HandleGetDerived(w http.ResponseWriter, r *http.Request) {
	out, err := ops.GetDerived(r.Context(), h.vault, r.PathValue("id"))
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleFetchRendered handles GET /api/derived/{id}/rendered.
func (h *Handlers) HandleFetchRendered(w http.ResponseWriter, r *http.Request) {
	f, err := ops.FetchRendered(r.Context(), h.vault, r.PathValue("id"))
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		renderError(w, h.log, r, errors.NewInternal(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// --- Annotations ---

type appendAnnotationRequest struct {
	DocumentName string `json:"document_name"`
	Body         string `json:"body"`
}

// HandleAppendAnnotation handles POST /api/annotations.
func (h *Handlers) HandleAppendAnnotation(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[appendAnnotationRequest](r)
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	out, err := ops.AppendAnnotation(r.Context(), h.vault.DB, ops.AppendAnnotationInput{
		DocumentName: req.DocumentName,
		Body:         req.Body,
	})
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, out)
}

// HandleListAnnotations handles GET /api/annotations?document_name=.
func (h *Handlers) HandleListAnnotations(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListAnnotations(r.Context(), h.vault.DB, r.URL.Query().Get("document_name"))
	if err != nil {
		renderError(w, h.log, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
