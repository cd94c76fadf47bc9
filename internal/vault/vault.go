// Package vault defines the persisted record types shared by every store.
package vault

import "encoding/json"

// Collection names, one per logical record store.
const (
	CollectionFolders  = "folders"
	CollectionCaptures = "captures"
	CollectionDerived  = "derived_documents"
)

// Folder is a named grouping backed by a directory under the storage root.
// File count is never stored; see FolderSummary.
type Folder struct {
	// ID is a ULID; names are labels and may repeat across folders
	ID string `json:"id"`

	Name string `json:"name"`

	// CreatedAt is the Unix timestamp of the folder upload
	CreatedAt int64 `json:"created_at"`

	// RootPath is the absolute directory holding the folder's files
	RootPath string `json:"root_path"`
}

// FolderSummary is a Folder plus its live file count.
type FolderSummary struct {
	Folder
	FileCount int `json:"file_count"`
}

// Capture is a managed screen-image artifact ("snip").
type Capture struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// CapturedAt is the client-supplied capture timestamp, stored verbatim
	CapturedAt string `json:"capture_timestamp"`

	StoredFilename string `json:"stored_filename"`

	// Folder is the folder name, or empty for the storage root
	Folder string `json:"folder"`

	AbsolutePath string `json:"absolute_path"`
	CreatedAt    int64  `json:"created_at"`

	// AccessURL is derived from the configured base URL; never authoritative
	AccessURL string `json:"access_url,omitempty"`
}

// Highlight is an opaque highlight descriptor. The core stores and returns
// it verbatim and never looks inside.
type Highlight = json.RawMessage

// DerivedDocument describes a transformed copy of a document, such as a
// highlighted PDF, together with its rendered presentation artifact.
type DerivedDocument struct {
	ID              string      `json:"id"`
	SourceFilename  string      `json:"source_filename"`
	Folder          string      `json:"folder"`
	Highlights      []Highlight `json:"highlights"`
	CreatedAt       int64       `json:"created_at"`
	RenderedPath    string      `json:"rendered_path"`
	SourceReference string      `json:"source_reference"`
	RenderedBody    string      `json:"rendered_body"`
}

// Annotation is one free-text note attached to a document by name.
type Annotation struct {
	ID           int64  `json:"id"`
	DocumentName string `json:"document_name"`
	Body         string `json:"body"`
}
