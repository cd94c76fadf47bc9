package ops

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/vault"
)

// CreateFolderInput contains parameters for the CreateFolder operation.
type CreateFolderInput struct {
	Name string
}

// CreateFolderOutput contains the result of the CreateFolder operation.
type CreateFolderOutput struct {
	Folder vault.Folder `json:"folder"`
}

// CreateFolder registers a new folder and creates its directory.
// Names may repeat; every call yields a distinct id and directory.
func CreateFolder(ctx context.Context, v *Vault, input CreateFolderInput) (*CreateFolderOutput, error) {
	name := vault.CleanName(input.Name)
	if name == "" {
		return nil, errors.NewInvalidRequest("folder name is required")
	}

	var (
		created    vault.Folder
		createdDir bool
	)
	err := v.Folders.Mutate(ctx, func(folders map[string]vault.Folder) error {
		id := vault.NewID()
		root := filepath.Join(v.Cfg.StorageDir, SanitizeForFilename(name))
		if rootClaimed(folders, root) {
			root = filepath.Join(v.Cfg.StorageDir, SanitizeForFilename(name)+"-"+id)
		}

		if _, err := os.Stat(root); err != nil {
			createdDir = true
		}
		if err := ensureDir(root); err != nil {
			return err
		}

		created = vault.Folder{
			ID:        id,
			Name:      name,
			CreatedAt: time.Now().Unix(),
			RootPath:  root,
		}
		folders[id] = created
		return nil
	})
	if err != nil {
		// The record was not saved; drop the directory we made for it.
		if createdDir {
			removeIfEmpty(created.RootPath)
		}
		return nil, err
	}

	v.Log.Info("folder created", slog.String("id", created.ID), slog.String("name", created.Name))
	return &CreateFolderOutput{Folder: created}, nil
}

// rootClaimed reports whether any folder already owns root.
func rootClaimed(folders map[string]vault.Folder, root string) bool {
	for _, f := range folders {
		if filepath.Clean(f.RootPath) == filepath.Clean(root) {
			return true
		}
	}
	return false
}

// removeIfEmpty removes dir only when it holds nothing.
func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}

// ListFoldersOutput contains the result of the ListFolders operation.
type ListFoldersOutput struct {
	Items []vault.FolderSummary `json:"items"`
}

// ListFolders returns every folder with its live recursive file count,
// ordered by creation time.
func ListFolders(ctx context.Context, v *Vault) (*ListFoldersOutput, error) {
	folders, err := v.Folders.Load(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]vault.FolderSummary, 0, len(folders))
	for _, f := range sortedFolders(folders) {
		items = append(items, vault.FolderSummary{
			Folder:    f,
			FileCount: countFiles(f.RootPath),
		})
	}
	return &ListFoldersOutput{Items: items}, nil
}

// countFiles counts regular files beneath root. A missing root counts as
// zero; unreadable subdirectories are skipped.
func countFiles(root string) int {
	n := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n
}

// DeleteFolderInput contains parameters for the DeleteFolder operation.
type DeleteFolderInput struct {
	ID string
}

// DeleteFolderOutput contains the result of the DeleteFolder operation.
type DeleteFolderOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
	Name    string `json:"name"`

	// PrunedCaptures and PrunedDerived count records whose files lived in
	// the removed directory.
	PrunedCaptures int `json:"pruned_captures"`
	PrunedDerived  int `json:"pruned_derived"`
}

// DeleteFolder removes a folder's directory tree and then its record.
// If the tree cannot be removed the record is kept and DELETION_FAILED is
// returned, so the caller can retry.
func DeleteFolder(ctx context.Context, v *Vault, input DeleteFolderInput) (*DeleteFolderOutput, error) {
	if input.ID == "" {
		return nil, errors.NewInvalidRequest("folder id is required")
	}

	var removed vault.Folder
	err := v.Folders.Mutate(ctx, func(folders map[string]vault.Folder) error {
		f, ok := folders[input.ID]
		if !ok {
			return errors.NewNotFound("folder", input.ID)
		}
		if !isStrictlyWithin(v.Cfg.StorageDir, f.RootPath) {
			return errors.NewDeletionFailed("folder", f.ID,
				fmt.Errorf("root path %s is outside the storage directory", f.RootPath))
		}
		if err := removeTree(f.RootPath); err != nil {
			return errors.NewDeletionFailed("folder", f.ID, err)
		}
		delete(folders, f.ID)
		removed = f
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &DeleteFolderOutput{Deleted: true, ID: removed.ID, Name: removed.Name}

	// Records under the removed tree now point at nothing. Pruning is
	// best-effort; a failure here leaves dangling records, not lost files.
	out.PrunedCaptures, err = pruneCapturesUnder(ctx, v, removed.RootPath)
	if err != nil {
		v.Log.Warn("failed to prune capture records", slog.String("folder", removed.ID), slog.String("error", err.Error()))
	}
	out.PrunedDerived, err = pruneDerivedUnder(ctx, v, removed.RootPath)
	if err != nil {
		v.Log.Warn("failed to prune derived document records", slog.String("folder", removed.ID), slog.String("error", err.Error()))
	}

	v.Log.Info("folder deleted", slog.String("id", removed.ID), slog.String("name", removed.Name))
	return out, nil
}

// removeTree is os.RemoveAll, overridable in tests.
var removeTree = os.RemoveAll

func pruneCapturesUnder(ctx context.Context, v *Vault, root string) (int, error) {
	n := 0
	err := v.Captures.Mutate(ctx, func(captures map[string]vault.Capture) error {
		for id, c := range captures {
			if isWithin(root, c.AbsolutePath) {
				delete(captures, id)
				n++
			}
		}
		if n == 0 {
			return errNothingToSave
		}
		return nil
	})
	if stderrors.Is(err, errNothingToSave) {
		err = nil
	}
	return n, err
}

func pruneDerivedUnder(ctx context.Context, v *Vault, root string) (int, error) {
	n := 0
	err := v.Derived.Mutate(ctx, func(docs map[string]vault.DerivedDocument) error {
		for id, d := range docs {
			if isWithin(root, d.RenderedPath) {
				delete(docs, id)
				n++
			}
		}
		if n == 0 {
			return errNothingToSave
		}
		return nil
	})
	if stderrors.Is(err, errNothingToSave) {
		err = nil
	}
	return n, err
}

// errNothingToSave aborts a Mutate that changed nothing.
var errNothingToSave = stderrors.New("nothing to save")

// UploadFile is one file of an UploadFolder request.
type UploadFile struct {
	Filename string
	Body     io.Reader
}

// UploadFolderInput contains parameters for the UploadFolder operation.
type UploadFolderInput struct {
	Name  string
	Files []UploadFile
}

// UploadFolderOutput contains the result of the UploadFolder operation.
type UploadFolderOutput struct {
	Folder vault.Folder `json:"folder"`
	Files  []string     `json:"files"`
}

// UploadFolder creates a folder and writes each file into its directory.
// Files are written after the folder record exists, so a partial upload
// leaves a registered folder holding the files written so far.
func UploadFolder(ctx context.Context, v *Vault, input UploadFolderInput) (*UploadFolderOutput, error) {
	names := make([]string, 0, len(input.Files))
	for _, f := range input.Files {
		name, err := ValidateFilename(f.Filename)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	created, err := CreateFolder(ctx, v, CreateFolderInput{Name: input.Name})
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(names))
	for i, f := range input.Files {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("upload")
		}
		if _, err := writeFileAtomic(filepath.Join(created.Folder.RootPath, names[i]), f.Body, 0644); err != nil {
			return nil, err
		}
		written = append(written, names[i])
	}

	return &UploadFolderOutput{Folder: created.Folder, Files: written}, nil
}
