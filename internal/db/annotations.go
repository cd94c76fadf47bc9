package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/vault"
)

// InsertAnnotation appends one annotation row and returns its id.
// No uniqueness is enforced; the same body may be stored twice.
func InsertAnnotation(ctx context.Context, db *sql.DB, documentName, body string) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO annotations (document_name, body) VALUES (?, ?)`,
		documentName, body,
	)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// ListAnnotations returns every annotation for documentName in insertion order.
func ListAnnotations(ctx context.Context, db *sql.DB, documentName string) ([]vault.Annotation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, document_name, body FROM annotations WHERE document_name = ? ORDER BY id ASC`,
		documentName,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	items := make([]vault.Annotation, 0)
	for rows.Next() {
		var a vault.Annotation
		if err := rows.Scan(&a.ID, &a.DocumentName, &a.Body); err != nil {
			return nil, errors.NewInternal(err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return items, nil
}

// CountAnnotations returns the total number of annotation rows.
func CountAnnotations(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}
