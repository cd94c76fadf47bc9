package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/ops"
)

// maxRenderedBytes bounds the HTML returned by derived_fetch.
const maxRenderedBytes = 8 << 20

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	vault *ops.Vault
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(v *ops.Vault) *Handlers {
	return &Handlers{vault: v}
}

// Request types for each tool

// FolderCreateRequest represents the arguments for folder_create.
type FolderCreateRequest struct {
	Name string `json:"name"`
}

// IDRequest represents the arguments for tools addressed by record id.
type IDRequest struct {
	ID string `json:"id"`
}

// FolderFilterRequest represents the arguments for list tools filtered by folder.
type FolderFilterRequest struct {
	Folder string `json:"folder,omitempty"`
}

// DocumentListRequest represents the arguments for document_list.
type DocumentListRequest struct {
	Folder string `json:"folder,omitempty"`
	Ext    string `json:"ext,omitempty"`
}

// CaptureAcquireRequest represents the arguments for capture_acquire.
type CaptureAcquireRequest struct {
	Folder           string `json:"folder"`
	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	CaptureTimestamp string `json:"capture_timestamp,omitempty"`
}

// DerivedCreateRequest represents the arguments for derived_create.
type DerivedCreateRequest struct {
	SourceFilename  string            `json:"source_filename,omitempty"`
	Folder          string            `json:"folder"`
	Highlights      []json.RawMessage `json:"highlights"`
	RenderedBody    string            `json:"rendered_body,omitempty"`
	SourceReference string            `json:"source_reference,omitempty"`
}

// AnnotationAppendRequest represents the arguments for annotation_append.
type AnnotationAppendRequest struct {
	DocumentName string `json:"document_name"`
	Body         string `json:"body"`
}

// AnnotationListRequest represents the arguments for annotation_list.
type AnnotationListRequest struct {
	DocumentName string `json:"document_name"`
}

// ExportRequest represents the arguments for collections_export.
type ExportRequest struct {
	Dir string `json:"dir,omitempty"`
}

// ImportRequest represents the arguments for collections_import.
type ImportRequest struct {
	Dir  string `json:"dir"`
	Mode string `json:"mode,omitempty"`
}

// Handler implementations

// HandleFolderCreate handles the folder_create tool call.
func (h *Handlers) HandleFolderCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FolderCreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.CreateFolder(ctx, h.vault, ops.CreateFolderInput{Name: input.Name})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderList handles the folder_list tool call.
func (h *Handlers) HandleFolderList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListFolders(ctx, h.vault)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderDelete handles the folder_delete tool call.
func (h *Handlers) HandleFolderDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.DeleteFolder(ctx, h.vault, ops.DeleteFolderInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDocumentList handles the document_list tool call.
func (h *Handlers) HandleDocumentList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ListDocuments(ctx, h.vault, ops.ListDocumentsInput{Folder: input.Folder, Ext: input.Ext})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureAcquire handles the capture_acquire tool call. When the
// client supplied a progress token, each state transition is sent as a
// progress notification.
func (h *Handlers) HandleCaptureAcquire(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureAcquireRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.AcquireCapture(ctx, h.vault, ops.AcquireInput{
		Folder:      input.Folder,
		Title:       input.Title,
		Description: input.Description,
		CapturedAt:  input.CaptureTimestamp,
		OnState:     h.progressReporter(ctx, req),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// progressReporter returns an OnState callback that forwards states to the
// client, or nil when there is no one to notify.
func (h *Handlers) progressReporter(ctx context.Context, req mcp.CallToolRequest) func(ops.CaptureState) {
	if req.Params.Meta == nil || req.Params.Meta.ProgressToken == nil {
		return nil
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	token := req.Params.Meta.ProgressToken
	step := 0
	return func(st ops.CaptureState) {
		step++
		err := srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      step,
			"message":       string(st),
		})
		if err != nil {
			h.vault.Log.Debug("progress notification failed", slog.String("error", err.Error()))
		}
	}
}

// HandleCaptureList handles the capture_list tool call.
func (h *Handlers) HandleCaptureList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FolderFilterRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ListCaptures(ctx, h.vault, ops.ListCapturesInput{Folder: input.Folder})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureGet handles the capture_get tool call.
func (h *Handlers) HandleCaptureGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.GetCapture(ctx, h.vault, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureDelete handles the capture_delete tool call.
func (h *Handlers) HandleCaptureDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.DeleteCapture(ctx, h.vault, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDerivedCreate handles the derived_create tool call.
func (h *Handlers) HandleDerivedCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DerivedCreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.CreateDerived(ctx, h.vault, ops.CreateDerivedInput{
		SourceFilename:  input.SourceFilename,
		Folder:          input.Folder,
		Highlights:      input.Highlights,
		RenderedBody:    input.RenderedBody,
		SourceReference: input.SourceReference,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDerivedGet handles the derived_get tool call.
func (h *Handlers) HandleDerivedGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.GetDerived(ctx, h.vault, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDerivedList handles the derived_list tool call.
func (h *Handlers) HandleDerivedList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FolderFilterRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ListDerived(ctx, h.vault, ops.ListDerivedInput{Folder: input.Folder})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// DerivedFetchOutput is the result of derived_fetch.
type DerivedFetchOutput struct {
	ID        string `json:"id"`
	HTML      string `json:"html"`
	Truncated bool   `json:"truncated,omitempty"`
}

// HandleDerivedFetch handles the derived_fetch tool call.
func (h *Handlers) HandleDerivedFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	f, err := ops.FetchRendered(ctx, h.vault, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, maxRenderedBytes+1))
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	out := DerivedFetchOutput{ID: input.ID}
	if len(body) > maxRenderedBytes {
		body = body[:maxRenderedBytes]
		out.Truncated = true
	}
	out.HTML = string(body)
	return successResult(out)
}

// HandleAnnotationAppend handles the annotation_append tool call.
func (h *Handlers) HandleAnnotationAppend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnnotationAppendRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.AppendAnnotation(ctx, h.vault.DB, ops.AppendAnnotationInput{
		DocumentName: input.DocumentName,
		Body:         input.Body,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAnnotationList handles the annotation_list tool call.
func (h *Handlers) HandleAnnotationList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnnotationListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ListAnnotations(ctx, h.vault.DB, input.DocumentName)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the collections_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ExportCollections(ctx, h.vault, ops.ExportInput{Dir: input.Dir})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleImport handles the collections_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ImportCollections(ctx, h.vault, ops.ImportInput{
		Dir:  input.Dir,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed; they may carry paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var vErr *errors.VaultError
	if stderrors.As(err, &vErr) {
		errorObj := map[string]any{
			"code":    vErr.Code,
			"message": vErr.Message,
			"status":  vErr.Status,
		}
		if vErr.Code != errors.ErrInternal && vErr.Details != nil {
			errorObj["details"] = vErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
