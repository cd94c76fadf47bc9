package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CaptureDeadline.Std() != 20*time.Second {
		t.Errorf("CaptureDeadline = %v, want 20s", cfg.CaptureDeadline.Std())
	}
	if cfg.CaptureInterval.Std() != 3*time.Second {
		t.Errorf("CaptureInterval = %v, want 3s", cfg.CaptureInterval.Std())
	}
	if cfg.CaptureFreshness.Std() != 20*time.Second {
		t.Errorf("CaptureFreshness = %v, want 20s", cfg.CaptureFreshness.Std())
	}
	if cfg.RecordBackend != BackendSQLite {
		t.Errorf("RecordBackend = %q, want %q", cfg.RecordBackend, BackendSQLite)
	}
	if cfg.StorageDir != filepath.Join(tmpDir, "uploads") {
		t.Errorf("StorageDir = %q, want %q", cfg.StorageDir, filepath.Join(tmpDir, "uploads"))
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	body := `{
		"record_backend": "file",
		"capture_deadline": "5s",
		"capture_interval": "250ms",
		"capture_dirs": ["/a", "/b"],
		"capture_extensions": ["PNG", "jpeg"],
		"storage_dir": "/srv/vault"
	}`
	if err := os.WriteFile(configPath, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RecordBackend != BackendFile {
		t.Errorf("RecordBackend = %q, want file", cfg.RecordBackend)
	}
	if cfg.CaptureDeadline.Std() != 5*time.Second {
		t.Errorf("CaptureDeadline = %v, want 5s", cfg.CaptureDeadline.Std())
	}
	if cfg.CaptureInterval.Std() != 250*time.Millisecond {
		t.Errorf("CaptureInterval = %v, want 250ms", cfg.CaptureInterval.Std())
	}
	if len(cfg.CaptureDirs) != 2 || cfg.CaptureDirs[0] != "/a" {
		t.Errorf("CaptureDirs = %v, want [/a /b]", cfg.CaptureDirs)
	}
	if len(cfg.CaptureExtensions) != 2 || cfg.CaptureExtensions[0] != ".png" || cfg.CaptureExtensions[1] != ".jpeg" {
		t.Errorf("CaptureExtensions = %v, want [.png .jpeg]", cfg.CaptureExtensions)
	}
	if cfg.StorageDir != "/srv/vault" {
		t.Errorf("StorageDir = %q, want /srv/vault", cfg.StorageDir)
	}
	// Untouched scalars keep defaults
	if cfg.CaptureFreshness.Std() != 20*time.Second {
		t.Errorf("CaptureFreshness = %v, want default 20s", cfg.CaptureFreshness.Std())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	if err := os.WriteFile(configPath, []byte(`{"capture_deadline": "5s", "log": {"level": "warn"}}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("SNIPVAULT_CAPTURE_DEADLINE", "7s")
	t.Setenv("SNIPVAULT_LOG_LEVEL", "debug")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CaptureDeadline.Std() != 7*time.Second {
		t.Errorf("CaptureDeadline = %v, want 7s (env)", cfg.CaptureDeadline.Std())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug (env)", cfg.Log.Level)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_InvalidBackend(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"record_backend": "mongo"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error for unknown backend, got nil")
	}
}

func TestMerge_DisabledToolsDeduplicated(t *testing.T) {
	base := &Config{DisabledTools: []string{"capture_start", " folder_delete "}}
	overlay := &Config{DisabledTools: []string{"folder_delete", ""}}

	got := Merge(base, overlay)
	if len(got.DisabledTools) != 2 {
		t.Fatalf("DisabledTools = %v, want 2 entries", got.DisabledTools)
	}
}

func TestMerge_BoolOr(t *testing.T) {
	got := Merge(&Config{}, &Config{CaptureConcurrent: true})
	if !got.CaptureConcurrent {
		t.Error("CaptureConcurrent = false, want true")
	}
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"1m30s"`), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Duration = %v, want 1m30s", d.Std())
	}

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `"1m30s"` {
		t.Errorf("Marshal() = %s, want \"1m30s\"", out)
	}

	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Error("Unmarshal(\"soon\") expected error")
	}
}
