package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/snipvault/internal/config"
	"github.com/hpungsan/snipvault/internal/errors"
)

func TestAnnotations_AppendAndList(t *testing.T) {
	v := newTestVault(t, config.BackendSQLite)
	ctx := context.Background()

	require.NoError(t, InitAnnotations(v.DB), "init must be idempotent")

	for _, body := range []string{"first", "second", "first"} {
		out, err := AppendAnnotation(ctx, v.DB, AppendAnnotationInput{DocumentName: "lecture.pdf", Body: body})
		if err != nil {
			t.Fatalf("AppendAnnotation failed: %v", err)
		}
		assert.NotZero(t, out.ID)
	}
	_, err := AppendAnnotation(ctx, v.DB, AppendAnnotationInput{DocumentName: "other.pdf", Body: "elsewhere"})
	require.NoError(t, err)

	list, err := ListAnnotations(ctx, v.DB, "lecture.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "first"}, list.Annotations, "insertion order, duplicates kept")

	empty, err := ListAnnotations(ctx, v.DB, "unknown.pdf")
	require.NoError(t, err)
	assert.NotNil(t, empty.Annotations)
	assert.Empty(t, empty.Annotations)
}

func TestAnnotations_DocumentNameRequired(t *testing.T) {
	v := newTestVault(t, config.BackendSQLite)
	ctx := context.Background()

	_, err := AppendAnnotation(ctx, v.DB, AppendAnnotationInput{DocumentName: " ", Body: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	_, err = ListAnnotations(ctx, v.DB, "")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}
