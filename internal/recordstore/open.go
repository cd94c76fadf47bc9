package recordstore

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/hpungsan/snipvault/internal/config"
)

// FilePath returns where the flat-file backend keeps collection under dataDir.
func FilePath(dataDir, collection string) string {
	return filepath.Join(dataDir, collection+".json")
}

// OpenBackend returns the configured backend for collection.
// The database is only required for the sqlite backend.
func OpenBackend(kind string, database *sql.DB, dataDir, collection string) (Backend, error) {
	switch kind {
	case config.BackendSQLite, "":
		if database == nil {
			return nil, fmt.Errorf("recordstore: sqlite backend needs a database")
		}
		return NewSQLBackend(database, collection, dataDir), nil
	case config.BackendFile:
		return NewFileBackend(FilePath(dataDir, collection)), nil
	default:
		return nil, fmt.Errorf("recordstore: unknown backend %q", kind)
	}
}
