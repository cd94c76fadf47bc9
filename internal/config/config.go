package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Record backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Duration is a time.Duration that reads from JSON strings ("20s") and env vars.
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.SetValue(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"20s\": %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// SetValue implements cleanenv.Setter.
func (d *Duration) SetValue(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level,omitempty"  env:"SNIPVAULT_LOG_LEVEL"`
	Format string `json:"format,omitempty" env:"SNIPVAULT_LOG_FORMAT"`
}

// Config holds application configuration.
type Config struct {
	// StorageDir is the root directory holding one subdirectory per folder.
	// Defaults to <baseDir>/uploads.
	StorageDir string `json:"storage_dir,omitempty" env:"SNIPVAULT_STORAGE_DIR"`

	// RecordBackend selects where collections live: "sqlite" (default) or "file".
	RecordBackend string `json:"record_backend,omitempty" env:"SNIPVAULT_RECORD_BACKEND"`

	// CaptureDeadline bounds how long an acquisition polls for a new image.
	CaptureDeadline Duration `json:"capture_deadline,omitempty" env:"SNIPVAULT_CAPTURE_DEADLINE"`

	// CaptureInterval is the time between candidate directory scans.
	CaptureInterval Duration `json:"capture_interval,omitempty" env:"SNIPVAULT_CAPTURE_INTERVAL"`

	// CaptureFreshness is how recent an image must be to count as just captured.
	CaptureFreshness Duration `json:"capture_freshness,omitempty" env:"SNIPVAULT_CAPTURE_FRESHNESS"`

	// CaptureDirs is the ordered list of directories scanned for new images.
	// Directories that do not exist on this host are skipped.
	CaptureDirs []string `json:"capture_dirs,omitempty" env:"SNIPVAULT_CAPTURE_DIRS"`

	// CaptureExtensions lists accepted image extensions (lowercase, with dot).
	CaptureExtensions []string `json:"capture_extensions,omitempty" env:"SNIPVAULT_CAPTURE_EXTENSIONS"`

	// CaptureCommand launches the native capture tool. Empty disables launching
	// (useful when the operator triggers captures by other means).
	CaptureCommand []string `json:"capture_command,omitempty" env:"SNIPVAULT_CAPTURE_COMMAND"`

	// CaptureConcurrent allows overlapping acquisitions. They race on the same
	// candidate directories, so the default is to reject the second one.
	CaptureConcurrent bool `json:"capture_concurrent,omitempty" env:"SNIPVAULT_CAPTURE_CONCURRENT"`

	// BaseURL prefixes derived access URLs.
	BaseURL string `json:"base_url,omitempty" env:"SNIPVAULT_BASE_URL"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" env:"SNIPVAULT_DB_MAX_OPEN_CONNS"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" env:"SNIPVAULT_DB_MAX_IDLE_CONNS"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" env:"SNIPVAULT_DISABLED_TOOLS"`

	Log LogConfig `json:"log,omitempty"`
}

// DefaultConfig returns the default configuration.
// StorageDir is left empty; Load fills it relative to the base directory.
func DefaultConfig() *Config {
	return &Config{
		RecordBackend:     BackendSQLite,
		CaptureDeadline:   Duration(20 * time.Second),
		CaptureInterval:   Duration(3 * time.Second),
		CaptureFreshness:  Duration(20 * time.Second),
		CaptureDirs:       DefaultCaptureDirs(),
		CaptureExtensions: []string{".png", ".jpg"},
		CaptureCommand:    DefaultCaptureCommand(),
		BaseURL:           "http://127.0.0.1:5000",
		Log:               LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultCaptureDirs returns the platform's usual screenshot locations, most specific first.
func DefaultCaptureDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "Pictures", "Screenshots"),
		filepath.Join(home, "OneDrive", "Pictures", "Screenshots"),
		filepath.Join(home, "Pictures"),
	}
}

// DefaultCaptureCommand returns the command that opens the native capture UI.
func DefaultCaptureCommand() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"explorer", "ms-screenclip:"}
	case "darwin":
		return []string{"screencapture", "-i", "-U"}
	default:
		return []string{"gnome-screenshot", "-i"}
	}
}

// Load loads configuration from baseDir/config.json, then applies
// SNIPVAULT_* environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.snipvault.
func Load(baseDir string) (*Config, error) {
	fileCfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	cfg := Merge(DefaultConfig(), fileCfg)

	// Env wins over the file; only variables that are set are applied.
	if err := cleanenv.UpdateEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(baseDir, "uploads")
	}
	cfg.CaptureExtensions = normalizeExtensions(cfg.CaptureExtensions)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing runtime errors.
func (c *Config) Validate() error {
	if c.RecordBackend != BackendSQLite && c.RecordBackend != BackendFile {
		return fmt.Errorf("config: record_backend must be %q or %q, got %q", BackendSQLite, BackendFile, c.RecordBackend)
	}
	if c.CaptureDeadline <= 0 {
		return errors.New("config: capture_deadline must be positive")
	}
	if c.CaptureInterval <= 0 {
		return errors.New("config: capture_interval must be positive")
	}
	if c.CaptureFreshness <= 0 {
		return errors.New("config: capture_freshness must be positive")
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; lists replace wholesale when set,
// except DisabledTools which is merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := *base

	if overlay.StorageDir != "" {
		result.StorageDir = overlay.StorageDir
	}
	if overlay.RecordBackend != "" {
		result.RecordBackend = overlay.RecordBackend
	}
	if overlay.CaptureDeadline != 0 {
		result.CaptureDeadline = overlay.CaptureDeadline
	}
	if overlay.CaptureInterval != 0 {
		result.CaptureInterval = overlay.CaptureInterval
	}
	if overlay.CaptureFreshness != 0 {
		result.CaptureFreshness = overlay.CaptureFreshness
	}
	if overlay.BaseURL != "" {
		result.BaseURL = overlay.BaseURL
	}
	if overlay.DBMaxOpenConns != 0 {
		result.DBMaxOpenConns = overlay.DBMaxOpenConns
	}
	if overlay.DBMaxIdleConns != 0 {
		result.DBMaxIdleConns = overlay.DBMaxIdleConns
	}
	if overlay.Log.Level != "" {
		result.Log.Level = overlay.Log.Level
	}
	if overlay.Log.Format != "" {
		result.Log.Format = overlay.Log.Format
	}

	// Booleans: overlay wins if true, else base
	result.CaptureConcurrent = base.CaptureConcurrent || overlay.CaptureConcurrent

	// Directory and command lists are ordered; an explicit list replaces the default.
	if overlay.CaptureDirs != nil {
		result.CaptureDirs = overlay.CaptureDirs
	}
	if overlay.CaptureExtensions != nil {
		result.CaptureExtensions = overlay.CaptureExtensions
	}
	if overlay.CaptureCommand != nil {
		result.CaptureCommand = overlay.CaptureCommand
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return &result
}

// normalizeExtensions lowercases extensions and ensures a leading dot.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
