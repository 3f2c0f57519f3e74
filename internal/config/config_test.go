package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseByteSize_K8sAndCommonUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"1Ki", 1024},
		{"1KiB", 1024},
		{"2Mi", 2 * 1024 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"3Gi", 3 * 1024 * 1024 * 1024},
		{"3GiB", 3 * 1024 * 1024 * 1024},
		{"10KB", 10 * 1000},
		{"10MB", 10 * 1000 * 1000},
		{"2GB", 2 * 1000 * 1000 * 1000},
		{"512B", 512},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	// invalid
	if _, err := ParseByteSize("bad"); err == nil {
		t.Fatalf("expected error for invalid unit")
	}
	if _, err := ParseByteSize(""); err == nil {
		t.Fatalf("expected error for empty size")
	}
}

func TestLoad_WithEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	t.Setenv("PITCH_SERVICE_URL", "http://pitch.example.com:8000")

	yaml := `
service:
  baseUrl: "${PITCH_SERVICE_URL}"
  requestTimeout: 30s

upload:
  strategy: "auto"
  chunkSize: 4Mi
  attempts: 5
  backoff: 500ms

session:
  minDuration: 5s

storage:
  dir: "` + escapeBackslashes(dir) + `"

logLevel: "debug"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}

	if cfg.Service.BaseURL != "http://pitch.example.com:8000" {
		t.Fatalf("env expansion failed: %q", cfg.Service.BaseURL)
	}
	if cfg.Service.RequestTimeout != 30*time.Second {
		t.Fatalf("requestTimeout = %s", cfg.Service.RequestTimeout)
	}
	if uint64(cfg.Upload.ChunkSize) != 4*1024*1024 {
		t.Fatalf("chunkSize = %d", cfg.Upload.ChunkSize)
	}
	if cfg.Upload.Attempts != 5 || cfg.Upload.Backoff != 500*time.Millisecond {
		t.Fatalf("upload retry settings not parsed")
	}
	if cfg.Session.MinDuration != 5*time.Second {
		t.Fatalf("minDuration = %s", cfg.Session.MinDuration)
	}

	// Unset fields fall back to defaults.
	if cfg.Session.PollInterval != 1500*time.Millisecond {
		t.Fatalf("pollInterval default = %s", cfg.Session.PollInterval)
	}
	if uint64(cfg.Upload.MaxVideoSize) != 100*1024*1024 {
		t.Fatalf("maxVideoSize default = %d", cfg.Upload.MaxVideoSize)
	}
	if !strings.HasSuffix(cfg.Storage.DatabasePath, "pitchkit.db") {
		t.Fatalf("databasePath should default under storage dir, got %s", cfg.Storage.DatabasePath)
	}
}

func TestLoad_MissingDefaultFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PITCHKIT_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.BaseURL != "http://localhost:8000" {
		t.Fatalf("baseUrl default = %q", cfg.Service.BaseURL)
	}
	if cfg.Upload.Strategy != "auto" {
		t.Fatalf("strategy default = %q", cfg.Upload.Strategy)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("logLevel default = %q", cfg.LogLevel)
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("explicit missing file must fail")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"relative base url", "service:\n  baseUrl: \"not a url\"\n"},
		{"bad strategy", "upload:\n  strategy: \"carrier-pigeon\"\n"},
		{"bad log level", "logLevel: \"loud\"\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(p, []byte(c.yaml), 0o600); err != nil {
				t.Fatalf("write cfg: %v", err)
			}
			if _, err := Load(p); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func escapeBackslashes(p string) string {
	// On Windows, YAML literal may require escaping backslashes
	return strings.ReplaceAll(p, `\`, `\\`)
}
