package ops

import (
	"context"
	"log/slog"
	"os"
	"sort"

	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/vault"
)

// ListCapturesInput contains parameters for the ListCaptures operation.
type ListCapturesInput struct {
	Folder string // empty lists every folder
}

// ListCapturesOutput contains the result of the ListCaptures operation.
type ListCapturesOutput struct {
	Items []vault.Capture `json:"items"`
}

// ListCaptures returns capture records, newest first.
func ListCaptures(ctx context.Context, v *Vault, input ListCapturesInput) (*ListCapturesOutput, error) {
	captures, err := v.Captures.Load(ctx)
	if err != nil {
		return nil, err
	}

	folder := vault.CleanName(input.Folder)
	items := make([]vault.Capture, 0, len(captures))
	for _, c := range captures {
		if folder != "" && c.Folder != folder {
			continue
		}
		items = append(items, withAccessURL(v, c))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return items[i].ID > items[j].ID
	})
	return &ListCapturesOutput{Items: items}, nil
}

// GetCapture returns one capture record.
func GetCapture(ctx context.Context, v *Vault, id string) (*vault.Capture, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("capture id is required")
	}
	c, ok, err := v.Captures.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("capture", id)
	}
	c = withAccessURL(v, c)
	return &c, nil
}

// withAccessURL recomputes the access URL from the current base URL.
func withAccessURL(v *Vault, c vault.Capture) vault.Capture {
	c.AccessURL = vault.AccessURL(v.Cfg.BaseURL, c.Folder, c.StoredFilename)
	return c
}

// DeleteCaptureOutput contains the result of the DeleteCapture operation.
type DeleteCaptureOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteCapture removes a capture's image and then its record. An image
// that is already gone does not block removal; any other file error keeps
// the record and returns DELETION_FAILED.
func DeleteCapture(ctx context.Context, v *Vault, id string) (*DeleteCaptureOutput, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("capture id is required")
	}

	err := v.Captures.Mutate(ctx, func(captures map[string]vault.Capture) error {
		c, ok := captures[id]
		if !ok {
			return errors.NewNotFound("capture", id)
		}
		if err := os.Remove(c.AbsolutePath); err != nil && !os.IsNotExist(err) {
			return errors.NewDeletionFailed("capture", id, err)
		}
		delete(captures, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	v.Log.Info("capture deleted", slog.String("id", id))
	return &DeleteCaptureOutput{Deleted: true, ID: id}, nil
}
