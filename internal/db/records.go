package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/hpungsan/snipvault/internal/errors"
)

// AnyVersion makes ReplaceRecords unconditional.
const AnyVersion int64 = -1

// LoadRecords returns the raw JSON body of every record in a collection, keyed
// by id, together with the collection version those rows belong to. A
// collection that was never written has version 0.
func LoadRecords(ctx context.Context, db *sql.DB, collection string) (map[string][]byte, int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, errors.NewInternal(fmt.Errorf("begin transaction: %w", err))
	}
	// Read-only; rollback just ends the snapshot.
	defer func() { _ = tx.Rollback() }()

	version, err := recordsVersion(ctx, tx, collection)
	if err != nil {
		return nil, 0, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, body FROM records WHERE collection = ?`,
		collection,
	)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			id   string
			body string
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out[id] = []byte(body)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return out, version, nil
}

// RecordsVersion returns the number of committed writes to a collection.
func RecordsVersion(ctx context.Context, db *sql.DB, collection string) (int64, error) {
	return recordsVersion(ctx, db, collection)
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func recordsVersion(ctx context.Context, q rowQuerier, collection string) (int64, error) {
	var version int64
	err := q.QueryRowContext(ctx,
		`SELECT version FROM record_versions WHERE collection = ?`,
		collection,
	).Scan(&version)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return version, nil
}

// ReplaceRecords atomically replaces a collection's contents with records and
// returns the new collection version. Either every row is written or the
// collection is left as it was.
//
// Unless expected is AnyVersion, the write only happens if the collection is
// still at version expected; otherwise it fails with CONFLICT.
func ReplaceRecords(ctx context.Context, db *sql.DB, collection string, records map[string][]byte, expected int64) (version int64, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewInternal(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Writing first takes the database write lock before anything is read,
	// so the version check below sees the latest commit.
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO record_versions (collection, version) VALUES (?, 0)
		 ON CONFLICT (collection) DO NOTHING`,
		collection,
	); err != nil {
		return 0, errors.NewInternal(err)
	}

	err = tx.QueryRowContext(ctx,
		`UPDATE record_versions SET version = version + 1
		 WHERE collection = ? AND (? < 0 OR version = ?)
		 RETURNING version`,
		collection, expected, expected,
	).Scan(&version)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = errors.NewConflict(collection)
		return 0, err
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return 0, errors.NewInternal(err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (collection, id, body) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer stmt.Close()

	for id, body := range records {
		if _, err = stmt.ExecContext(ctx, collection, id, string(body)); err != nil {
			return 0, errors.NewInternal(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, errors.NewInternal(fmt.Errorf("commit: %w", err))
	}
	return version, nil
}
