// Package recordstore persists one logical collection of records keyed by id.
//
// A Store owns an in-memory snapshot of its collection. Every Load hands out a
// freshly decoded copy, every successful Save refreshes the snapshot, and
// Mutate runs a load-mutate-save cycle while holding the collection lock, so
// writers in this or any other process cannot lose each other's updates.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hpungsan/snipvault/internal/errors"
)

// Backend reads and writes one collection as raw JSON records keyed by id.
//
// Read returns an empty map when nothing has been saved yet, and an error
// with code errors.ErrStoreCorruption when the stored encoding is unreadable.
// Read and Write report the version of the state they saw or produced, and
// Version reports the current one cheaply.
//
// Write must be all-or-nothing: a failed Write leaves the previous state
// readable. A non-empty expected version makes Write fail with
// errors.ErrConflict when the stored version differs.
//
// Lock holds the collection exclusively, across processes, until the
// returned func is called.
type Backend interface {
	Read(ctx context.Context) (map[string]json.RawMessage, string, error)
	Write(ctx context.Context, records map[string]json.RawMessage, expected string) (string, error)
	Version(ctx context.Context) (string, error)
	Lock(ctx context.Context) (func(), error)
	Describe() string
}

// Store is a typed record collection on top of a Backend.
type Store[T any] struct {
	collection string
	backend    Backend
	log        *slog.Logger

	// writeMu serializes writers within this process before they contend
	// for the backend lock.
	writeMu sync.Mutex

	snapMu sync.RWMutex
	// snapshot holds encoded records so every Load decodes its own copy.
	snapshot map[string]json.RawMessage
	version  string
	loaded   bool
	// generation increments on every Save and Invalidate so a slow Load
	// cannot install a snapshot older than one a writer already published.
	generation uint64

	corruptions atomic.Int64
}

// New creates a store for collection. A nil logger uses slog.Default().
func New[T any](collection string, backend Backend, logger *slog.Logger) *Store[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[T]{
		collection: collection,
		backend:    backend,
		log:        logger.With(slog.String("collection", collection)),
	}
}

// Collection returns the collection name.
func (s *Store[T]) Collection() string { return s.collection }

// Describe names the backend holding the collection.
func (s *Store[T]) Describe() string { return s.backend.Describe() }

// Corruptions reports how many times this store found unreadable data and
// fell back to an empty (or partial) collection. Zero means every load was clean.
func (s *Store[T]) Corruptions() int64 { return s.corruptions.Load() }

// Load returns a deep copy of the collection. Callers may mutate the returned
// map and records freely; changes are only persisted through Save or Mutate.
//
// A missing or corrupt backing store yields an empty map, never an error.
// Corruption is logged at WARN and counted so it can be told apart from a
// store that is legitimately empty.
func (s *Store[T]) Load(ctx context.Context) (map[string]T, error) {
	raw, gen, ok := s.cachedSnapshot(ctx)
	if !ok {
		var (
			version string
			err     error
		)
		raw, version, err = s.readBackend(ctx)
		if err != nil {
			return nil, err
		}

		s.snapMu.Lock()
		if s.generation == gen {
			s.snapshot = raw
			s.version = version
			s.loaded = version != ""
		}
		s.snapMu.Unlock()
	}
	return s.decode(raw)
}

// Get returns one record by id.
func (s *Store[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	records, err := s.Load(ctx)
	if err != nil {
		return zero, false, err
	}
	rec, ok := records[id]
	return rec, ok, nil
}

// Save replaces the whole collection with records.
// It is all-or-nothing: on error the previously saved state remains readable.
func (s *Store[T]) Save(ctx context.Context, records map[string]T) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	unlock, err := s.backend.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return s.write(ctx, records, "")
}

// Mutate runs fn against a fresh copy of the collection and saves the result
// if fn returns nil. The collection lock is held throughout, so each Mutate,
// in any process, observes every earlier one's changes and fn runs once.
//
// If a writer that bypasses the lock changes the collection in between, the
// save fails with CONFLICT and nothing is written.
func (s *Store[T]) Mutate(ctx context.Context, fn func(records map[string]T) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	unlock, err := s.backend.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	// Always read the backend: the snapshot may predate another process's write.
	raw, version, err := s.readBackend(ctx)
	if err != nil {
		return err
	}
	records, err := s.decode(raw)
	if err != nil {
		return err
	}
	if err := fn(records); err != nil {
		return err
	}
	return s.write(ctx, records, version)
}

// Invalidate drops the in-memory snapshot; the next Load reads the backend.
func (s *Store[T]) Invalidate() {
	s.snapMu.Lock()
	s.generation++
	s.snapshot = nil
	s.version = ""
	s.loaded = false
	s.snapMu.Unlock()
}

// write encodes records and hands them to the backend, then publishes them
// as the snapshot.
func (s *Store[T]) write(ctx context.Context, records map[string]T, expected string) error {
	encoded := make(map[string]json.RawMessage, len(records))
	for id, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return errors.NewInternal(fmt.Errorf("encode %s record %s: %w", s.collection, id, err))
		}
		encoded[id] = b
	}

	version, err := s.backend.Write(ctx, encoded, expected)
	if err != nil {
		// The snapshot may now disagree with the backend; force a re-read.
		s.Invalidate()
		if errors.Is(err, errors.ErrConflict) {
			s.log.Warn("collection changed during update; nothing written",
				slog.String("backend", s.backend.Describe()))
		}
		return err
	}

	s.snapMu.Lock()
	s.generation++
	s.snapshot = encoded
	s.version = version
	s.loaded = version != ""
	s.snapMu.Unlock()

	return nil
}

// cachedSnapshot returns the snapshot when it is still current, along with
// the generation it was observed at.
func (s *Store[T]) cachedSnapshot(ctx context.Context) (map[string]json.RawMessage, uint64, bool) {
	s.snapMu.RLock()
	snap, version, loaded, gen := s.snapshot, s.version, s.loaded, s.generation
	s.snapMu.RUnlock()

	if !loaded {
		return nil, gen, false
	}
	current, err := s.backend.Version(ctx)
	if err != nil || current != version {
		return nil, gen, false
	}
	return snap, gen, true
}

// readBackend reads the collection and drops records that do not decode,
// absorbing corruption. The returned map only holds decodable records.
func (s *Store[T]) readBackend(ctx context.Context) (map[string]json.RawMessage, string, error) {
	raw, version, err := s.backend.Read(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrStoreCorruption) {
			s.corruptions.Add(1)
			s.log.Warn("record store unreadable; treating as empty",
				slog.String("backend", s.backend.Describe()),
				slog.String("error", err.Error()),
			)
			return make(map[string]json.RawMessage), version, nil
		}
		return nil, "", err
	}

	for id, body := range raw {
		var rec T
		if err := json.Unmarshal(body, &rec); err != nil {
			s.corruptions.Add(1)
			s.log.Warn("skipping undecodable record",
				slog.String("backend", s.backend.Describe()),
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			delete(raw, id)
		}
	}

	return raw, version, nil
}

// decode unmarshals every record into a new value, so no two callers share
// slices or maps.
func (s *Store[T]) decode(raw map[string]json.RawMessage) (map[string]T, error) {
	records := make(map[string]T, len(raw))
	for id, body := range raw {
		var rec T
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("decode %s record %s: %w", s.collection, id, err))
		}
		records[id] = rec
	}
	return records, nil
}
