package ops

import (
	"context"

	"github.com/hpungsan/snipvault/internal/db"
	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/recordstore"
)

// CollectionStatus summarizes one record collection.
type CollectionStatus struct {
	Name        string `json:"name"`
	Backend     string `json:"backend"`
	Records     int    `json:"records"`
	Corruptions int64  `json:"corruptions"`
}

// StatusOutput contains the result of the Status operation.
type StatusOutput struct {
	StorageDir    string             `json:"storage_dir"`
	SchemaVersion int                `json:"schema_version"`
	Collections   []CollectionStatus `json:"collections"`
	Annotations   int                `json:"annotations"`
}

// Status reports where data lives and how much of it there is.
// Corruption counts cover loads made by this process only.
func Status(ctx context.Context, v *Vault) (*StatusOutput, error) {
	out := &StatusOutput{StorageDir: v.Cfg.StorageDir}

	if v.DB != nil {
		version, err := db.GetUserVersion(v.DB)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out.SchemaVersion = version

		n, err := db.CountAnnotations(ctx, v.DB)
		if err != nil {
			return nil, err
		}
		out.Annotations = n
	}

	folders, err := collectionStatus(ctx, v.Folders)
	if err != nil {
		return nil, err
	}
	captures, err := collectionStatus(ctx, v.Captures)
	if err != nil {
		return nil, err
	}
	derived, err := collectionStatus(ctx, v.Derived)
	if err != nil {
		return nil, err
	}
	out.Collections = []CollectionStatus{folders, captures, derived}
	return out, nil
}

func collectionStatus[T any](ctx context.Context, s *recordstore.Store[T]) (CollectionStatus, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return CollectionStatus{}, err
	}
	return CollectionStatus{
		Name:        s.Collection(),
		Backend:     s.Describe(),
		Records:     len(records),
		Corruptions: s.Corruptions(),
	}, nil
}
