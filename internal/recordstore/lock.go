package recordstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/hpungsan/snipvault/internal/errors"
)

const (
	lockRetryDelay = 10 * time.Millisecond
	lockWait       = 10 * time.Second
)

// LockPath returns the lock file guarding collection under dir.
func LockPath(dir, collection string) string {
	return filepath.Join(dir, collection+".lock")
}

// collectionLock is an advisory OS file lock shared by every process that
// works on the same collection. The kernel drops it if the holder dies.
type collectionLock struct {
	path       string
	collection string
}

// acquire blocks until the lock is held, ctx ends, or lockWait passes.
func (l collectionLock) acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create lock directory: %w", err))
	}

	waitCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	fl := flock.New(l.path)
	locked, err := fl.TryLockContext(waitCtx, lockRetryDelay)
	if err != nil || !locked {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("lock " + l.collection)
		}
		if err == nil || waitCtx.Err() != nil {
			return nil, errors.NewConflict(l.collection)
		}
		return nil, errors.NewInternal(fmt.Errorf("lock %s: %w", l.path, err))
	}
	return func() { _ = fl.Unlock() }, nil
}
