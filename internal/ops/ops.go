package ops

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/hpungsan/snipvault/internal/config"
	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/recordstore"
	"github.com/hpungsan/snipvault/internal/vault"
)

// Vault bundles the stores and settings every operation needs.
// One Vault should own a data directory per process.
type Vault struct {
	DB  *sql.DB
	Cfg *config.Config
	Log *slog.Logger

	// DataDir holds flat-file collections and default export directories.
	DataDir string

	Folders  *recordstore.Store[vault.Folder]
	Captures *recordstore.Store[vault.Capture]
	Derived  *recordstore.Store[vault.DerivedDocument]

	Capture *CaptureService
}

// Open wires the configured record backend for each collection and creates
// the storage root. dataDir holds flat-file collections when the file backend
// is selected; database is required for the sqlite backend and annotations.
func Open(database *sql.DB, cfg *config.Config, dataDir string, logger *slog.Logger) (*Vault, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(dataDir, "uploads")
	}
	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	open := func(collection string) (recordstore.Backend, error) {
		return recordstore.OpenBackend(cfg.RecordBackend, database, dataDir, collection)
	}
	fb, err := open(vault.CollectionFolders)
	if err != nil {
		return nil, err
	}
	cb, err := open(vault.CollectionCaptures)
	if err != nil {
		return nil, err
	}
	db, err := open(vault.CollectionDerived)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		DB:       database,
		Cfg:      cfg,
		Log:      logger,
		DataDir:  dataDir,
		Folders:  recordstore.New[vault.Folder](vault.CollectionFolders, fb, logger),
		Captures: recordstore.New[vault.Capture](vault.CollectionCaptures, cb, logger),
		Derived:  recordstore.New[vault.DerivedDocument](vault.CollectionDerived, db, logger),
	}
	v.Capture = NewCaptureService(cfg, logger)
	return v, nil
}

// folderDir resolves a folder name to its directory. An empty name is the
// storage root. Registered folders use their recorded root path (the oldest
// one wins when names repeat); unregistered names map to a sanitized
// subdirectory of the storage root.
func (v *Vault) folderDir(ctx context.Context, name string) (string, error) {
	name = vault.CleanName(name)
	if name == "" {
		return v.Cfg.StorageDir, nil
	}

	folders, err := v.Folders.Load(ctx)
	if err != nil {
		return "", err
	}
	if f, ok := oldestFolderNamed(folders, name); ok {
		return f.RootPath, nil
	}
	return filepath.Join(v.Cfg.StorageDir, SanitizeForFilename(name)), nil
}

// oldestFolderNamed returns the earliest-created folder with the given name.
func oldestFolderNamed(folders map[string]vault.Folder, name string) (vault.Folder, bool) {
	var (
		best  vault.Folder
		found bool
	)
	for _, f := range folders {
		if f.Name != name {
			continue
		}
		if !found || f.CreatedAt < best.CreatedAt || (f.CreatedAt == best.CreatedAt && f.ID < best.ID) {
			best, found = f, true
		}
	}
	return best, found
}

// sortedFolders returns folders ordered by creation time, then id.
func sortedFolders(folders map[string]vault.Folder) []vault.Folder {
	out := make([]vault.Folder, 0, len(folders))
	for _, f := range folders {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ensureDir creates dir (and parents) if missing.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create directory: %w", err))
	}
	return nil
}
