package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hpungsan/snipvault/internal/db"
	"github.com/hpungsan/snipvault/internal/errors"
)

// SQLBackend stores a collection as rows of the SQLite records table.
// Each Write replaces the collection inside one transaction and bumps the
// collection's version counter.
type SQLBackend struct {
	db         *sql.DB
	collection string
	lock       collectionLock
}

// NewSQLBackend returns a backend for collection in database. lockDir holds
// the lock file that serializes writers across processes.
func NewSQLBackend(database *sql.DB, collection, lockDir string) *SQLBackend {
	return &SQLBackend{
		db:         database,
		collection: collection,
		lock:       collectionLock{path: LockPath(lockDir, collection), collection: collection},
	}
}

// Describe implements Backend.
func (b *SQLBackend) Describe() string { return "sqlite:" + b.collection }

// Version implements Backend.
func (b *SQLBackend) Version(ctx context.Context) (string, error) {
	v, err := db.RecordsVersion(ctx, b.db, b.collection)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}

// Lock implements Backend.
func (b *SQLBackend) Lock(ctx context.Context) (func(), error) {
	return b.lock.acquire(ctx)
}

// Read implements Backend.
func (b *SQLBackend) Read(ctx context.Context) (map[string]json.RawMessage, string, error) {
	rows, version, err := db.LoadRecords(ctx, b.db, b.collection)
	if err != nil {
		return nil, "", err
	}
	out := make(map[string]json.RawMessage, len(rows))
	for id, body := range rows {
		out[id] = body
	}
	return out, strconv.FormatInt(version, 10), nil
}

// Write implements Backend.
func (b *SQLBackend) Write(ctx context.Context, records map[string]json.RawMessage, expected string) (string, error) {
	want := db.AnyVersion
	if expected != "" {
		v, err := strconv.ParseInt(expected, 10, 64)
		if err != nil {
			return "", errors.NewInternal(fmt.Errorf("bad %s version %q: %w", b.collection, expected, err))
		}
		want = v
	}

	rows := make(map[string][]byte, len(records))
	for id, body := range records {
		rows[id] = body
	}
	version, err := db.ReplaceRecords(ctx, b.db, b.collection, rows, want)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(version, 10), nil
}
