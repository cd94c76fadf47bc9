package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/snipvault/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"folder_create": {
		def:     folderCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderCreate },
	},
	"folder_list": {
		def:     folderListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderList },
	},
	"folder_delete": {
		def:     folderDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderDelete },
	},
	"document_list": {
		def:     documentListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentList },
	},
	"capture_acquire": {
		def:     captureAcquireToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureAcquire },
	},
	"capture_list": {
		def:     captureListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureList },
	},
	"capture_get": {
		def:     captureGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureGet },
	},
	"capture_delete": {
		def:     captureDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureDelete },
	},
	"derived_create": {
		def:     derivedCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDerivedCreate },
	},
	"derived_get": {
		def:     derivedGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDerivedGet },
	},
	"derived_list": {
		def:     derivedListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDerivedList },
	},
	"derived_fetch": {
		def:     derivedFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDerivedFetch },
	},
	"annotation_append": {
		def:     annotationAppendToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnnotationAppend },
	},
	"annotation_list": {
		def:     annotationListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnnotationList },
	},
	"collections_export": {
		def:     collectionsExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"collections_import": {
		def:     collectionsImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with snipvault tools registered.
// Tools listed in DisabledTools are excluded from registration.
func NewServer(v *ops.Vault, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"snipvault",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(v)

	disabled := make(map[string]bool)
	for _, name := range v.Cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(v *ops.Vault, version string) error {
	return server.ServeStdio(NewServer(v, version))
}
