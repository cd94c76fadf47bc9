package ops

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/vault"
)

// DocumentExt is the extension ListDocuments reports by default.
const DocumentExt = ".pdf"

// UploadDocumentInput contains parameters for the UploadDocument operation.
type UploadDocumentInput struct {
	Folder   string // empty means the storage root
	Filename string
	Body     io.Reader
}

// DocumentInfo describes one stored document file.
type DocumentInfo struct {
	Filename  string `json:"filename"`
	Folder    string `json:"folder"`
	Size      int64  `json:"size"`
	AccessURL string `json:"access_url"`
}

// UploadDocument stores a file in a folder directory, replacing any file
// with the same name.
func UploadDocument(ctx context.Context, v *Vault, input UploadDocumentInput) (*DocumentInfo, error) {
	name, err := ValidateFilename(input.Filename)
	if err != nil {
		return nil, err
	}
	if input.Body == nil {
		return nil, errors.NewInvalidRequest("document body is required")
	}

	folder := vault.CleanName(input.Folder)
	dir, err := v.folderDir(ctx, folder)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	n, err := writeFileAtomic(filepath.Join(dir, name), input.Body, 0644)
	if err != nil {
		return nil, err
	}

	return &DocumentInfo{
		Filename:  name,
		Folder:    folder,
		Size:      n,
		AccessURL: vault.AccessURL(v.Cfg.BaseURL, folder, name),
	}, nil
}

// ListDocumentsInput contains parameters for the ListDocuments operation.
type ListDocumentsInput struct {
	Folder string
	Ext    string // default: DocumentExt
}

// ListDocumentsOutput contains the result of the ListDocuments operation.
type ListDocumentsOutput struct {
	Folder string         `json:"folder"`
	Items  []DocumentInfo `json:"items"`
}

// ListDocuments lists the files directly inside a folder directory whose
// extension matches, sorted by name. A missing directory lists as empty.
func ListDocuments(ctx context.Context, v *Vault, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	ext := strings.ToLower(input.Ext)
	if ext == "" {
		ext = DocumentExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	folder := vault.CleanName(input.Folder)
	dir, err := v.folderDir(ctx, folder)
	if err != nil {
		return nil, err
	}

	out := &ListDocumentsOutput{Folder: folder, Items: []DocumentInfo{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, errors.NewInternal(err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || strings.ToLower(filepath.Ext(e.Name())) != ext {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out.Items = append(out.Items, DocumentInfo{
			Filename:  e.Name(),
			Folder:    folder,
			Size:      info.Size(),
			AccessURL: vault.AccessURL(v.Cfg.BaseURL, folder, e.Name()),
		})
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].Filename < out.Items[j].Filename })
	return out, nil
}

// OpenDocumentInput contains parameters for the OpenDocument operation.
type OpenDocumentInput struct {
	Folder   string
	Filename string
}

// OpenDocument opens a stored file for reading. The caller must close it.
func OpenDocument(ctx context.Context, v *Vault, input OpenDocumentInput) (*os.File, error) {
	name, err := ValidateFilename(input.Filename)
	if err != nil {
		return nil, err
	}
	dir, err := v.folderDir(ctx, input.Folder)
	if err != nil {
		return nil, err
	}

	f, err := openFileNoFollowRead(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.NewInternal(err)
	}
	return f, nil
}
