package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/snipvault/internal/errors"
)

func TestAnnotations_AppendAndList(t *testing.T) {
	ctx := context.Background()
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	id1, err := InsertAnnotation(ctx, db, "calculus.pdf", "first")
	require.NoError(t, err)
	id2, err := InsertAnnotation(ctx, db, "calculus.pdf", "second")
	require.NoError(t, err)
	_, err = InsertAnnotation(ctx, db, "other.pdf", "unrelated")
	require.NoError(t, err)
	// Duplicates are allowed
	_, err = InsertAnnotation(ctx, db, "calculus.pdf", "first")
	require.NoError(t, err)

	assert.Greater(t, id2, id1)

	items, err := ListAnnotations(ctx, db, "calculus.pdf")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "first", items[0].Body)
	assert.Equal(t, "second", items[1].Body)
	assert.Equal(t, "first", items[2].Body)
	assert.Equal(t, "calculus.pdf", items[0].DocumentName)

	n, err := CountAnnotations(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestAnnotations_ListUnknownDocument(t *testing.T) {
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	items, err := ListAnnotations(context.Background(), db, "nope.pdf")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestRecords_ReplaceAndLoad(t *testing.T) {
	ctx := context.Background()
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	_, version, err := LoadRecords(ctx, db, "folders")
	require.NoError(t, err)
	assert.Zero(t, version, "unwritten collection starts at version 0")

	v1, err := ReplaceRecords(ctx, db, "folders", map[string][]byte{
		"a": []byte(`{"id":"a"}`),
		"b": []byte(`{"id":"b"}`),
	}, AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)
	_, err = ReplaceRecords(ctx, db, "captures", map[string][]byte{
		"c": []byte(`{"id":"c"}`),
	}, AnyVersion)
	require.NoError(t, err)

	got, version, err := LoadRecords(ctx, db, "folders")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, v1, version)
	assert.JSONEq(t, `{"id":"a"}`, string(got["a"]))

	// Replace drops rows not in the new set, and leaves other collections alone
	v2, err := ReplaceRecords(ctx, db, "folders", map[string][]byte{
		"b": []byte(`{"id":"b","name":"x"}`),
	}, v1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	got, _, err = LoadRecords(ctx, db, "folders")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, string(got["b"]), `"name":"x"`)

	current, err := RecordsVersion(ctx, db, "captures")
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
}

func TestRecords_ReplaceStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	_, _, err = LoadRecords(ctx, db, "folders")
	require.NoError(t, err)

	// Someone else writes after our read at version 0.
	_, err = ReplaceRecords(ctx, db, "folders", map[string][]byte{"theirs": []byte(`{}`)}, 0)
	require.NoError(t, err)

	_, err = ReplaceRecords(ctx, db, "folders", map[string][]byte{"ours": []byte(`{}`)}, 0)
	require.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)

	got, version, err := LoadRecords(ctx, db, "folders")
	require.NoError(t, err)
	assert.Contains(t, got, "theirs", "conflicting write must not replace the collection")
	assert.NotContains(t, got, "ours")
	assert.Equal(t, int64(1), version)
}

func TestRecords_ReplaceCancelledLeavesPreviousState(t *testing.T) {
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	_, err = ReplaceRecords(context.Background(), db, "folders", map[string][]byte{
		"a": []byte(`{"id":"a"}`),
	}, AnyVersion)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReplaceRecords(ctx, db, "folders", map[string][]byte{}, AnyVersion)
	require.Error(t, err)

	got, version, err := LoadRecords(context.Background(), db, "folders")
	require.NoError(t, err)
	assert.Len(t, got, 1, "failed replace must not leave a partial collection")
	assert.Equal(t, int64(1), version)
}
