package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/recordstore"
	"github.com/hpungsan/snipvault/internal/vault"
)

// ExportInput contains parameters for the ExportCollections operation.
type ExportInput struct {
	Dir string // optional, default: <data dir>/exports/<timestamp>
}

// ExportOutput contains the result of the ExportCollections operation.
type ExportOutput struct {
	Dir        string         `json:"dir"`
	Counts     map[string]int `json:"counts"`
	ExportedAt int64          `json:"exported_at"`
}

// ExportCollections writes every record collection to dir in the flat-file
// encoding, one <collection>.json per collection.
func ExportCollections(ctx context.Context, v *Vault, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	dir := input.Dir
	if dir == "" {
		if v.DataDir == "" {
			return nil, errors.NewInvalidRequest("dir is required")
		}
		dir = filepath.Join(v.DataDir, "exports", now.Format("2006-01-02T150405"))
	}
	if containsTraversal(dir) {
		return nil, errors.NewInvalidRequest("dir must not contain directory traversal (..)")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	out := &ExportOutput{Dir: dir, Counts: map[string]int{}, ExportedAt: now.Unix()}
	var err error
	if out.Counts[vault.CollectionFolders], err = exportCollection(ctx, v.Folders, dir); err != nil {
		return nil, err
	}
	if out.Counts[vault.CollectionCaptures], err = exportCollection(ctx, v.Captures, dir); err != nil {
		return nil, err
	}
	if out.Counts[vault.CollectionDerived], err = exportCollection(ctx, v.Derived, dir); err != nil {
		return nil, err
	}
	return out, nil
}

func exportCollection[T any](ctx context.Context, src *recordstore.Store[T], dir string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancelled("export")
	}
	records, err := src.Load(ctx)
	if err != nil {
		return 0, err
	}

	encoded := make(map[string]json.RawMessage, len(records))
	for id, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		encoded[id] = b
	}

	dst := recordstore.NewFileBackend(recordstore.FilePath(dir, src.Collection()))
	if _, err := dst.Write(ctx, encoded, ""); err != nil {
		return 0, err
	}
	return len(encoded), nil
}

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on collision (per collection, atomic)
	ImportModeReplace ImportMode = "replace" // overwrite on collision
	ImportModeSkip    ImportMode = "skip"    // keep the existing record
)

// ImportInput contains parameters for the ImportCollections operation.
type ImportInput struct {
	Dir  string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the ImportCollections operation.
type ImportOutput struct {
	Imported map[string]int `json:"imported"`
	Skipped  map[string]int `json:"skipped"`
	Errors   []ImportError  `json:"errors"`
}

// ImportError describes one record that could not be imported.
type ImportError struct {
	Collection string `json:"collection"`
	ID         string `json:"id,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// ImportCollections loads flat-file collections from dir into the active
// record backend. Missing files are skipped; unreadable files fail the import.
func ImportCollections(ctx context.Context, v *Vault, input ImportInput) (*ImportOutput, error) {
	if input.Dir == "" {
		return nil, errors.NewInvalidRequest("dir is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeSkip {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, skip")
	}
	info, err := os.Stat(input.Dir)
	if err != nil || !info.IsDir() {
		return nil, errors.NewNotFound("directory", input.Dir)
	}

	out := &ImportOutput{
		Imported: map[string]int{},
		Skipped:  map[string]int{},
		Errors:   []ImportError{},
	}
	if err := importCollection(ctx, v.Folders, input, out); err != nil {
		return nil, err
	}
	if err := importCollection(ctx, v.Captures, input, out); err != nil {
		return nil, err
	}
	if err := importCollection(ctx, v.Derived, input, out); err != nil {
		return nil, err
	}
	return out, nil
}

func importCollection[T any](ctx context.Context, dst *recordstore.Store[T], input ImportInput, out *ImportOutput) error {
	collection := dst.Collection()
	path := recordstore.FilePath(input.Dir, collection)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	raw, _, err := recordstore.NewFileBackend(path).Read(ctx)
	if err != nil {
		return err
	}

	incoming := make(map[string]T, len(raw))
	for id, body := range raw {
		var rec T
		if err := json.Unmarshal(body, &rec); err != nil {
			out.Errors = append(out.Errors, ImportError{
				Collection: collection,
				ID:         id,
				Code:       "PARSE_ERROR",
				Message:    fmt.Sprintf("invalid record: %v", err),
			})
			continue
		}
		incoming[id] = rec
	}

	imported, skipped := 0, 0
	err = dst.Mutate(ctx, func(records map[string]T) error {
		if input.Mode == ImportModeError {
			for id := range incoming {
				if _, exists := records[id]; exists {
					return errors.NewInvalidRequest(fmt.Sprintf("%s record %s already exists", collection, id))
				}
			}
		}
		for id, rec := range incoming {
			if _, exists := records[id]; exists && input.Mode == ImportModeSkip {
				skipped++
				continue
			}
			records[id] = rec
			imported++
		}
		return nil
	})
	if err != nil {
		return err
	}

	out.Imported[collection] = imported
	out.Skipped[collection] = skipped
	return nil
}
