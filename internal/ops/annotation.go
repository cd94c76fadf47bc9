package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/snipvault/internal/db"
	"github.com/hpungsan/snipvault/internal/errors"
)

// InitAnnotations creates the annotation schema if it is missing.
// Safe to call on every start.
func InitAnnotations(database *sql.DB) error {
	if err := db.EnsureSchema(database); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// AppendAnnotationInput contains parameters for the AppendAnnotation operation.
type AppendAnnotationInput struct {
	DocumentName string // required
	Body         string
}

// AppendAnnotationOutput contains the result of the AppendAnnotation operation.
type AppendAnnotationOutput struct {
	ID           int64  `json:"id"`
	DocumentName string `json:"document_name"`
}

// AppendAnnotation stores one note against a document name. Duplicates are kept.
func AppendAnnotation(ctx context.Context, database *sql.DB, input AppendAnnotationInput) (*AppendAnnotationOutput, error) {
	name := strings.TrimSpace(input.DocumentName)
	if name == "" {
		return nil, errors.NewInvalidRequest("document_name is required")
	}

	id, err := db.InsertAnnotation(ctx, database, name, input.Body)
	if err != nil {
		return nil, err
	}
	return &AppendAnnotationOutput{ID: id, DocumentName: name}, nil
}

// ListAnnotationsOutput contains the result of the ListAnnotations operation.
type ListAnnotationsOutput struct {
	DocumentName string   `json:"document_name"`
	Annotations  []string `json:"annotations"`
}

// ListAnnotations returns the annotation bodies for a document in insertion order.
func ListAnnotations(ctx context.Context, database *sql.DB, documentName string) (*ListAnnotationsOutput, error) {
	name := strings.TrimSpace(documentName)
	if name == "" {
		return nil, errors.NewInvalidRequest("document_name is required")
	}

	rows, err := db.ListAnnotations(ctx, database, name)
	if err != nil {
		return nil, err
	}

	bodies := make([]string, 0, len(rows))
	for _, a := range rows {
		bodies = append(bodies, a.Body)
	}
	return &ListAnnotationsOutput{DocumentName: name, Annotations: bodies}, nil
}
