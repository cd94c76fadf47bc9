package recordstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hpungsan/snipvault/internal/errors"
)

// FileBackend stores a collection as one human-readable JSON object
// ({"<id>": {...}, ...}) in a single file.
//
// Writes go to a temp file in the same directory, are fsynced, and are then
// renamed over the target, so readers only ever see the old or the new file.
type FileBackend struct {
	path string
	lock collectionLock

	// afterTempWrite runs after the temp file is durable but before it is
	// renamed into place. Tests use it to simulate a crash mid-save.
	afterTempWrite func(tempPath string) error
}

// NewFileBackend returns a backend for the JSON file at path.
func NewFileBackend(path string) *FileBackend {
	base := filepath.Base(path)
	return &FileBackend{
		path: path,
		lock: collectionLock{path: path + ".lock", collection: strings.TrimSuffix(base, filepath.Ext(base))},
	}
}

// Path returns the backing file path.
func (f *FileBackend) Path() string { return f.path }

// Describe implements Backend.
func (f *FileBackend) Describe() string { return "file:" + f.path }

// Version implements Backend using size and modification time.
func (f *FileBackend) Version(_ context.Context) (string, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return "absent", nil
		}
		return "", err
	}
	return strconv.FormatInt(info.Size(), 10) + "@" + strconv.FormatInt(info.ModTime().UnixNano(), 10), nil
}

// Lock implements Backend.
func (f *FileBackend) Lock(ctx context.Context) (func(), error) {
	return f.lock.acquire(ctx)
}

// Read implements Backend. The version is taken before the file is read, so
// a write racing the read shows up as a version change later.
func (f *FileBackend) Read(ctx context.Context) (map[string]json.RawMessage, string, error) {
	version, err := f.Version(ctx)
	if err != nil {
		return nil, "", errors.NewInternal(fmt.Errorf("stat %s: %w", f.path, err))
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return make(map[string]json.RawMessage), version, nil
		}
		return nil, "", errors.NewInternal(fmt.Errorf("read %s: %w", f.path, err))
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, version, errors.NewStoreCorruption(filepath.Base(f.path), fmt.Errorf("file is empty"))
	}

	records := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, version, errors.NewStoreCorruption(filepath.Base(f.path), err)
	}
	return records, version, nil
}

// Write implements Backend. The expected-version check is only race-free
// while the caller holds Lock.
func (f *FileBackend) Write(ctx context.Context, records map[string]json.RawMessage, expected string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.NewCancelled("save")
	}
	if expected != "" {
		current, err := f.Version(ctx)
		if err != nil {
			return "", errors.NewInternal(fmt.Errorf("stat %s: %w", f.path, err))
		}
		if current != expected {
			return "", errors.NewConflict(f.lock.collection)
		}
	}
	if err := f.replace(records); err != nil {
		return "", err
	}

	version, err := f.Version(ctx)
	if err != nil {
		// Written; the caller just cannot cache it.
		return "", nil
	}
	return version, nil
}

// replace writes records to a temp file and renames it over the target.
func (f *FileBackend) replace(records map[string]json.RawMessage) error {
	if records == nil {
		records = map[string]json.RawMessage{}
	}
	// encoding/json sorts map keys, so the file is stable and diffable.
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.NewInternal(fmt.Errorf("encode collection: %w", err))
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create store directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := f.path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create temp file: %w", err))
	}

	// Clean up temp file on failure (original file is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close temp file: %w", err))
	}
	file = nil

	if f.afterTempWrite != nil {
		if err := f.afterTempWrite(tempPath); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to replace %s: %w", f.path, err))
	}
	success = true

	syncDir(dir)
	return nil
}

// syncDir flushes a directory entry change to disk (best-effort; not
// supported on every platform).
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
