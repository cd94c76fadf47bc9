package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/snipvault/internal/config"
	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/vault"
)

// seedCapture writes an image and its record directly, bypassing acquisition.
func seedCapture(t *testing.T, v *Vault, folder string, createdAt int64) vault.Capture {
	t.Helper()
	dir := filepath.Join(v.Cfg.StorageDir, folder)
	require.NoError(t, os.MkdirAll(dir, 0755))

	id := vault.NewID()
	name := "snip_" + id + ".png"
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))

	c := vault.Capture{
		ID:             id,
		Title:          name,
		StoredFilename: name,
		Folder:         folder,
		AbsolutePath:   path,
		CreatedAt:      createdAt,
	}
	require.NoError(t, v.Captures.Mutate(context.Background(), func(m map[string]vault.Capture) error {
		m[id] = c
		return nil
	}))
	return c
}

func TestListCaptures_NewestFirstAndFiltered(t *testing.T) {
	eachBackend(t, func(t *testing.T, v *Vault) {
		ctx := context.Background()
		a := seedCapture(t, v, "Math", 100)
		b := seedCapture(t, v, "Physics", 200)
		c := seedCapture(t, v, "Math", 300)

		all, err := ListCaptures(ctx, v, ListCapturesInput{})
		require.NoError(t, err)
		require.Len(t, all.Items, 3)
		assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{all.Items[0].ID, all.Items[1].ID, all.Items[2].ID})

		math, err := ListCaptures(ctx, v, ListCapturesInput{Folder: " Math "})
		require.NoError(t, err)
		require.Len(t, math.Items, 2)
		for _, item := range math.Items {
			assert.Equal(t, "Math", item.Folder)
			assert.Equal(t, vault.AccessURL(v.Cfg.BaseURL, "Math", item.StoredFilename), item.AccessURL)
		}
	})
}

func TestGetCapture_NotFound(t *testing.T) {
	v := newTestVault(t, config.BackendSQLite)
	_, err := GetCapture(context.Background(), v, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	_, err = GetCapture(context.Background(), v, "")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestGetCapture_AccessURLFollowsBaseURL(t *testing.T) {
	v := newTestVault(t, config.BackendSQLite)
	c := seedCapture(t, v, "Math", 1)
	v.Cfg.BaseURL = "https://notes.example.com"

	got, err := GetCapture(context.Background(), v, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://notes.example.com/uploads/Math/"+c.StoredFilename, got.AccessURL)
}

func TestDeleteCapture_RemovesFileAndRecord(t *testing.T) {
	eachBackend(t, func(t *testing.T, v *Vault) {
		ctx := context.Background()
		c := seedCapture(t, v, "Math", 1)

		out, err := DeleteCapture(ctx, v, c.ID)
		if err != nil {
			t.Fatalf("DeleteCapture failed: %v", err)
		}
		assert.True(t, out.Deleted)

		_, err = os.Stat(c.AbsolutePath)
		assert.True(t, os.IsNotExist(err))
		_, err = GetCapture(ctx, v, c.ID)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestDeleteCapture_FileAlreadyGone(t *testing.T) {
	v := newTestVault(t, config.BackendSQLite)
	ctx := context.Background()
	c := seedCapture(t, v, "Math", 1)
	require.NoError(t, os.Remove(c.AbsolutePath))

	_, err := DeleteCapture(ctx, v, c.ID)
	require.NoError(t, err)
	_, err = GetCapture(ctx, v, c.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDeleteCapture_FileErrorKeepsRecord(t *testing.T) {
	v := newTestVault(t, config.BackendSQLite)
	ctx := context.Background()
	c := seedCapture(t, v, "Math", 1)

	// A non-empty directory at the image path cannot be removed with os.Remove.
	require.NoError(t, os.Remove(c.AbsolutePath))
	require.NoError(t, os.MkdirAll(filepath.Join(c.AbsolutePath, "child"), 0755))

	_, err := DeleteCapture(ctx, v, c.ID)
	if !errors.Is(err, errors.ErrDeletionFailed) {
		t.Fatalf("DeleteCapture error = %v, want DELETION_FAILED", err)
	}
	_, err = GetCapture(ctx, v, c.ID)
	assert.NoError(t, err, "record must survive a failed file removal")
}

func TestDeleteCapture_NotFound(t *testing.T) {
	v := newTestVault(t, config.BackendSQLite)
	_, err := DeleteCapture(context.Background(), v, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestDeleteFolder_PrunesRecordsInsideTree(t *testing.T) {
	eachBackend(t, func(t *testing.T, v *Vault) {
		ctx := context.Background()
		out, err := CreateFolder(ctx, v, CreateFolderInput{Name: "Math"})
		require.NoError(t, err)

		inside := seedCapture(t, v, "Math", 1)
		outside := seedCapture(t, v, "Physics", 2)

		del, err := DeleteFolder(ctx, v, DeleteFolderInput{ID: out.Folder.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, del.PrunedCaptures)

		_, err = GetCapture(ctx, v, inside.ID)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
		_, err = GetCapture(ctx, v, outside.ID)
		assert.NoError(t, err)
	})
}
