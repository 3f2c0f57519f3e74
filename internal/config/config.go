package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Service  ServiceConfig `yaml:"service"`
	Upload   UploadConfig  `yaml:"upload"`
	Session  SessionConfig `yaml:"session"`
	Storage  StorageConfig `yaml:"storage"`
	LogLevel string        `yaml:"logLevel"` // debug|info|warn|error
}

// ServiceConfig points at the remote job service.
type ServiceConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	RequestTimeout time.Duration `yaml:"requestTimeout"` // control calls; uploads are unbounded
}

// UploadConfig tunes the transport strategies.
type UploadConfig struct {
	// Strategy selects the transport chain: "auto" tries the signed
	// direct upload and falls back to chunked; "stream" uses the
	// streaming proxy upload alone (for environments where chunked PATCH
	// requests are not viable).
	Strategy     string        `yaml:"strategy"`
	ChunkSize    ByteSize      `yaml:"chunkSize"`
	Attempts     int           `yaml:"attempts"`
	Backoff      time.Duration `yaml:"backoff"`
	MaxVideoSize ByteSize      `yaml:"maxVideoSize"`
	MaxDeckSize  ByteSize      `yaml:"maxDeckSize"`
}

// SessionConfig tunes the orchestration loop.
type SessionConfig struct {
	MinDuration  time.Duration `yaml:"minDuration"`
	PollInterval time.Duration `yaml:"pollInterval"`
	PollTimeout  time.Duration `yaml:"pollTimeout"`
}

// StorageConfig locates local client state.
type StorageConfig struct {
	Dir          string `yaml:"dir"`
	DatabasePath string `yaml:"databasePath"` // overrides dir/pitchkit.db; empty string after defaulting disables resume
}

// ByteSize represents a size in bytes that unmarshals from strings like
// "2Mi", "100MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseByteSize(strings.TrimSpace(value.Value))
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "2Mi", "100MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style binary quantities (Ki, Mi, Gi), KiB/MiB/GiB,
// decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)
	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and
// validates it. If path is empty it falls back to PITCHKIT_CONFIG, then
// "config.yaml"; a missing default file yields pure defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		if env := os.Getenv("PITCHKIT_CONFIG"); env != "" {
			path = env
			explicit = true
		} else {
			path = "config.yaml"
		}
	}

	var cfg Config
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			data = nil
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if len(data) > 0 {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.Dir != "" {
		if err := os.MkdirAll(cfg.Storage.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure storage dir: %w", err)
		}
	}
	if cfg.Storage.DatabasePath == "" && cfg.Storage.Dir != "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.Storage.Dir, "pitchkit.db")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Service.BaseURL == "" {
		cfg.Service.BaseURL = "http://localhost:8000"
	}
	if cfg.Service.RequestTimeout == 0 {
		cfg.Service.RequestTimeout = 60 * time.Second
	}

	if cfg.Upload.Strategy == "" {
		cfg.Upload.Strategy = "auto"
	}
	if cfg.Upload.ChunkSize == 0 {
		cfg.Upload.ChunkSize = ByteSize(2 * 1024 * 1024) // 2 MiB
	}
	if cfg.Upload.Attempts <= 0 {
		cfg.Upload.Attempts = 3
	}
	if cfg.Upload.Backoff == 0 {
		cfg.Upload.Backoff = time.Second
	}
	if cfg.Upload.MaxVideoSize == 0 {
		cfg.Upload.MaxVideoSize = ByteSize(100 * 1024 * 1024)
	}
	if cfg.Upload.MaxDeckSize == 0 {
		cfg.Upload.MaxDeckSize = ByteSize(25 * 1024 * 1024)
	}

	if cfg.Session.MinDuration == 0 {
		cfg.Session.MinDuration = 3 * time.Second
	}
	if cfg.Session.PollInterval == 0 {
		cfg.Session.PollInterval = 1500 * time.Millisecond
	}
	if cfg.Session.PollTimeout == 0 {
		cfg.Session.PollTimeout = 10 * time.Minute
	}

	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.Service.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service.baseUrl %q is not an absolute URL", cfg.Service.BaseURL)
	}
	switch cfg.Upload.Strategy {
	case "auto", "stream":
	default:
		return fmt.Errorf("upload.strategy must be auto or stream, got %q", cfg.Upload.Strategy)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel must be debug|info|warn|error, got %q", cfg.LogLevel)
	}
	return nil
}
