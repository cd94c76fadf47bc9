package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Folders

var folderCreateToolDef = mcp.NewTool("folder_create",
	mcp.WithDescription("Register a named folder and create its directory under the storage root. Names may repeat; each call yields a new id."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Display name of the folder")),
)

var folderListToolDef = mcp.NewTool("folder_list",
	mcp.WithDescription("List registered folders with the number of files under each."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var folderDeleteToolDef = mcp.NewTool("folder_delete",
	mcp.WithDescription("Delete a folder's directory tree and its record. Captures and derived documents stored inside are unregistered too."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Folder id")),
	mcp.WithDestructiveHintAnnotation(true),
)

// Documents

var documentListToolDef = mcp.NewTool("document_list",
	mcp.WithDescription("List stored documents in a folder directory (PDFs by default)."),
	mcp.WithString("folder", mcp.Description("Folder name; empty lists the storage root")),
	mcp.WithString("ext", mcp.Description("File extension to list, e.g. .pdf")),
	mcp.WithReadOnlyHintAnnotation(true),
)

// Captures

var captureAcquireToolDef = mcp.NewTool("capture_acquire",
	mcp.WithDescription("Launch the screen capture tool, wait for a fresh screenshot, move it into a folder, and record it. Blocks until the capture lands or the deadline passes."),
	mcp.WithString("folder", mcp.Required(), mcp.Description("Destination folder name")),
	mcp.WithString("title", mcp.Description("Title; defaults to the stored filename")),
	mcp.WithString("description", mcp.Description("Free-form description")),
	mcp.WithString("capture_timestamp", mcp.Description("Caller-supplied capture time, stored verbatim")),
)

var captureListToolDef = mcp.NewTool("capture_list",
	mcp.WithDescription("List capture records, newest first."),
	mcp.WithString("folder", mcp.Description("Only captures in this folder")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var captureGetToolDef = mcp.NewTool("capture_get",
	mcp.WithDescription("Get one capture record by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Capture id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var captureDeleteToolDef = mcp.NewTool("capture_delete",
	mcp.WithDescription("Delete a capture's image file and its record."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Capture id")),
	mcp.WithDestructiveHintAnnotation(true),
)

// Derived documents

var derivedCreateToolDef = mcp.NewTool("derived_create",
	mcp.WithDescription("Render a highlighted document to HTML in a folder and record it with its highlight descriptors."),
	mcp.WithString("folder", mcp.Required(), mcp.Description("Destination folder name")),
	mcp.WithArray("highlights", mcp.Required(),
		mcp.Description("Non-empty list of highlight descriptors; any JSON values"),
		mcp.Items(map[string]any{}),
	),
	mcp.WithString("source_filename", mcp.Description("Name of the document the highlights were made on")),
	mcp.WithString("rendered_body", mcp.Description("Markdown body rendered into the HTML page")),
	mcp.WithString("source_reference", mcp.Description("Path or URL of the source document")),
)

var derivedGetToolDef = mcp.NewTool("derived_get",
	mcp.WithDescription("Get one derived document record by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Derived document id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var derivedListToolDef = mcp.NewTool("derived_list",
	mcp.WithDescription("List derived document records in creation order."),
	mcp.WithString("folder", mcp.Description("Only documents in this folder")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var derivedFetchToolDef = mcp.NewTool("derived_fetch",
	mcp.WithDescription("Return the rendered HTML of a derived document."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Derived document id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

// Annotations

var annotationAppendToolDef = mcp.NewTool("annotation_append",
	mcp.WithDescription("Append an annotation to a document. Duplicates are kept."),
	mcp.WithString("document_name", mcp.Required(), mcp.Description("Document the note belongs to")),
	mcp.WithString("body", mcp.Required(), mcp.Description("Annotation text")),
)

var annotationListToolDef = mcp.NewTool("annotation_list",
	mcp.WithDescription("List annotations of a document in insertion order."),
	mcp.WithString("document_name", mcp.Required(), mcp.Description("Document name")),
	mcp.WithReadOnlyHintAnnotation(true),
)

// Collections

var collectionsExportToolDef = mcp.NewTool("collections_export",
	mcp.WithDescription("Write folders, captures and derived documents as flat JSON files."),
	mcp.WithString("dir", mcp.Description("Target directory; defaults to <data dir>/exports/<timestamp>")),
)

var collectionsImportToolDef = mcp.NewTool("collections_import",
	mcp.WithDescription("Load flat JSON collection files into the record store."),
	mcp.WithString("dir", mcp.Required(), mcp.Description("Directory holding folders.json, captures.json and derived_documents.json")),
	mcp.WithString("mode", mcp.Description("Collision handling"), mcp.Enum("error", "replace", "skip")),
)
