package ops

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hpungsan/snipvault/internal/config"
	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/vault"
)

// CaptureState is a step of one capture acquisition.
type CaptureState string

const (
	CaptureIdle             CaptureState = "idle"
	CaptureToolLaunched     CaptureState = "tool_launched"
	CapturePolling          CaptureState = "polling"
	CaptureFound            CaptureState = "found"
	CaptureTimedOut         CaptureState = "timed_out"
	CaptureRelocated        CaptureState = "relocated"
	CaptureRelocationFailed CaptureState = "relocation_failed"
)

// Launcher starts the platform's interactive capture tool. Launch must not
// wait for the operator to finish.
type Launcher interface {
	Launch(ctx context.Context) error
}

// CommandLauncher runs a command and reaps it in the background.
// An empty Args launches nothing.
type CommandLauncher struct {
	Args []string
}

// Launch implements Launcher.
func (l CommandLauncher) Launch(_ context.Context) error {
	if len(l.Args) == 0 {
		return nil
	}
	// Not bound to ctx: the capture UI belongs to the operator, not the request.
	cmd := exec.Command(l.Args[0], l.Args[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// CaptureService detects a freshly produced screen image and moves it into
// a folder. It holds no per-acquisition state beyond the busy guard.
type CaptureService struct {
	dirs      []string
	exts      map[string]bool
	deadline  time.Duration
	interval  time.Duration
	freshness time.Duration
	exclusive bool

	launcher Launcher
	now      func() time.Time
	// stamp picks the timestamp an image is judged by.
	stamp func(path string, info fs.FileInfo) time.Time

	log  *slog.Logger
	busy sync.Mutex
}

// NewCaptureService builds a service from configuration.
func NewCaptureService(cfg *config.Config, logger *slog.Logger) *CaptureService {
	exts := make(map[string]bool, len(cfg.CaptureExtensions))
	for _, e := range cfg.CaptureExtensions {
		exts[strings.ToLower(e)] = true
	}
	return &CaptureService{
		dirs:      cfg.CaptureDirs,
		exts:      exts,
		deadline:  cfg.CaptureDeadline.Std(),
		interval:  cfg.CaptureInterval.Std(),
		freshness: cfg.CaptureFreshness.Std(),
		exclusive: !cfg.CaptureConcurrent,
		launcher:  CommandLauncher{Args: cfg.CaptureCommand},
		now:       time.Now,
		stamp:     func(_ string, info fs.FileInfo) time.Time { return creationTime(info) },
		log:       logger,
	}
}

// SetLauncher replaces the capture tool launcher.
func (s *CaptureService) SetLauncher(l Launcher) { s.launcher = l }

// AcquireInput contains parameters for the AcquireCapture operation.
type AcquireInput struct {
	Folder      string // required
	Title       string // default: stored filename
	Description string
	CapturedAt  string // client timestamp, stored verbatim

	// OnState, if set, observes each state transition in order.
	OnState func(CaptureState)
}

// AcquireOutput contains the result of the AcquireCapture operation.
type AcquireOutput struct {
	Capture vault.Capture `json:"capture"`
	Source  string        `json:"source"`
	Waited  string        `json:"waited"`
}

// AcquireCapture launches the capture tool, waits for a fresh image in the
// candidate directories, moves it into the folder, and records it.
//
// It returns CAPTURE_TIMEOUT if nothing fresh appears before the deadline,
// CANCELLED if ctx ends first, and RELOCATION_FAILED if the image could not
// be moved. In every failure case no record is written.
func AcquireCapture(ctx context.Context, v *Vault, input AcquireInput) (*AcquireOutput, error) {
	folder := vault.CleanName(input.Folder)
	if folder == "" {
		return nil, errors.NewInvalidRequest("folder is required")
	}

	s := v.Capture
	if s.exclusive {
		if !s.busy.TryLock() {
			return nil, errors.NewCaptureBusy()
		}
		defer s.busy.Unlock()
	}

	report := func(st CaptureState) {
		s.log.Debug("capture state", slog.String("state", string(st)), slog.String("folder", folder))
		if input.OnState != nil {
			input.OnState(st)
		}
	}

	dir, err := v.folderDir(ctx, folder)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	report(CaptureIdle)

	started := s.now()
	if err := s.launcher.Launch(ctx); err != nil {
		// The operator can still capture by other means; keep polling.
		s.log.Warn("failed to launch capture tool", slog.String("error", err.Error()))
	}
	report(CaptureToolLaunched)

	report(CapturePolling)
	src, err := s.poll(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrCaptureTimeout) {
			report(CaptureTimedOut)
		}
		return nil, err
	}
	report(CaptureFound)

	id := vault.NewID()
	filename := "snip_" + id + strings.ToLower(filepath.Ext(src))
	dest, err := relocate(src, dir, filename)
	if err != nil {
		report(CaptureRelocationFailed)
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = filename
	}
	c := vault.Capture{
		ID:             id,
		Title:          title,
		Description:    input.Description,
		CapturedAt:     input.CapturedAt,
		StoredFilename: filename,
		Folder:         folder,
		AbsolutePath:   dest,
		CreatedAt:      s.now().Unix(),
		AccessURL:      vault.AccessURL(v.Cfg.BaseURL, folder, filename),
	}
	err = v.Captures.Mutate(ctx, func(captures map[string]vault.Capture) error {
		captures[c.ID] = c
		return nil
	})
	if err != nil {
		// Put the image back so a retry can pick it up again. relocate
		// also covers a source on another filesystem.
		if _, rerr := relocate(dest, filepath.Dir(src), filepath.Base(src)); rerr != nil {
			s.log.Error("failed to restore capture after record save failed",
				slog.String("path", dest), slog.String("error", rerr.Error()))
		}
		return nil, err
	}
	report(CaptureRelocated)

	s.log.Info("capture acquired",
		slog.String("id", c.ID),
		slog.String("folder", folder),
		slog.String("source", src),
	)
	return &AcquireOutput{
		Capture: c,
		Source:  src,
		Waited:  s.now().Sub(started).Round(time.Millisecond).String(),
	}, nil
}

// poll scans the candidate directories every interval, and early whenever
// the watcher sees a new image, until one is fresh or the deadline passes.
// One last scan runs at the deadline, so the wait never exceeds it.
func (s *CaptureService) poll(ctx context.Context) (string, error) {
	deadline := time.NewTimer(s.deadline)
	defer deadline.Stop()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	events, watchErrs, stop := s.watch()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return "", errors.NewCancelled("capture")
		case <-deadline.C:
			if p, ok := s.scan(); ok {
				return p, nil
			}
			return "", errors.NewCaptureTimeout(s.deadline.String())
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !s.isCaptureEvent(ev) {
				continue
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			s.log.Debug("capture watcher error", slog.String("error", err.Error()))
			continue
		}

		if p, ok := s.scan(); ok {
			return p, nil
		}
	}
}

// watch subscribes to the candidate directories that exist. Without a
// watcher the nil channels never fire and polling alone drives detection.
func (s *CaptureService) watch() (<-chan fsnotify.Event, <-chan error, func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Debug("capture watcher unavailable", slog.String("error", err.Error()))
		return nil, nil, func() {}
	}
	added := 0
	for _, dir := range s.dirs {
		if err := w.Add(dir); err == nil {
			added++
		}
	}
	if added == 0 {
		w.Close()
		return nil, nil, func() {}
	}
	return w.Events, w.Errors, func() { w.Close() }
}

// isCaptureEvent reports whether ev may have produced a candidate image.
func (s *CaptureService) isCaptureEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return s.exts[strings.ToLower(filepath.Ext(ev.Name))]
}

// scan returns the newest candidate image across all existing candidate
// directories, provided it is within the freshness window. Only the single
// newest image is considered.
func (s *CaptureService) scan() (string, bool) {
	var (
		best   string
		bestAt time.Time
	)
	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || !s.exts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			p := filepath.Join(dir, e.Name())
			at := s.stamp(p, info)
			if best == "" || at.After(bestAt) {
				best, bestAt = p, at
			}
		}
	}
	if best == "" || s.now().Sub(bestAt) >= s.freshness {
		return "", false
	}
	return best, true
}

// relocate moves src into dir as filename. Renames across filesystems fall
// back to copy-then-remove; the source is removed only after the copy is durable.
func relocate(src, dir, filename string) (string, error) {
	dest := filepath.Join(dir, filename)

	err := os.Rename(src, dest)
	if err == nil {
		return dest, nil
	}
	if _, serr := os.Lstat(src); serr != nil {
		return "", errors.NewRelocationFailed(src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", errors.NewRelocationFailed(src, err)
	}
	_, err = writeFileAtomic(dest, in, 0644)
	in.Close()
	if err != nil {
		return "", errors.NewRelocationFailed(src, err)
	}
	if err := os.Remove(src); err != nil {
		os.Remove(dest)
		return "", errors.NewRelocationFailed(src, fmt.Errorf("remove source after copy: %w", err))
	}
	return dest, nil
}
