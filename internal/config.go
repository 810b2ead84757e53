package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Cache eviction strategies.
const (
	EvictLRU = "lru"
	EvictLFU = "lfu"
	EvictTTL = "ttl"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Vault      VaultConfig       `yaml:"vault"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Ripgrep    RipgrepConfig     `yaml:"ripgrep"`
	Cache      CacheConfig       `yaml:"cache"`
	Jobs       JobsConfig        `yaml:"jobs"`
	Extract    ExtractConfig     `yaml:"extract"`
	Completion CompletionConfig  `yaml:"completion"`
	Tuner      TunerConfig       `yaml:"tuner"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.App, &c.Vault, &c.SQLite, &c.Auth, &c.Ripgrep,
		&c.Cache, &c.Jobs, &c.Extract, &c.Completion, &c.Tuner,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the vault directory and file selection rules.
type VaultConfig struct {
	Path     string   `yaml:"path"`
	Includes []string `yaml:"includes"` // file suffixes, e.g. ".md"
	Excludes []string `yaml:"excludes"` // directory/file names or globs
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// RipgrepConfig holds search-tool subprocess configuration.
type RipgrepConfig struct {
	Binary      string        `yaml:"binary"`
	Threads     int           `yaml:"threads"`
	MaxFilesize string        `yaml:"max_filesize"` // rg --max-filesize value, e.g. "1M"
	MaxColumns  int           `yaml:"max_columns"`
	MaxDepth    int           `yaml:"max_depth"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Validate validates the ripgrep configuration.
func (c *RipgrepConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.Required),
		validation.Field(&c.Threads, validation.Min(1), validation.Max(64)),
		validation.Field(&c.MaxDepth, validation.Min(1)),
	)
}

// CacheConfig holds cache tuning limits.
type CacheConfig struct {
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxBytes        int64         `yaml:"max_bytes"`
	Strategy        string        `yaml:"strategy"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultTTL, validation.Required),
		validation.Field(&c.CleanupInterval, validation.Required),
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(1024)),
		validation.Field(&c.Strategy, validation.Required, validation.In(EvictLRU, EvictLFU, EvictTTL)),
	)
}

// JobsConfig holds job queue limits.
type JobsConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	MaxQueued      int           `yaml:"max_queued"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// Validate validates the jobs configuration.
func (c *JobsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxConcurrent, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.MaxQueued, validation.Required, validation.Min(1)),
	)
}

// ExtractConfig holds extraction resource limits.
type ExtractConfig struct {
	MaxFiles        int           `yaml:"max_files"`
	MaxFileSize     int64         `yaml:"max_file_size"`
	MaxLinesPerFile int           `yaml:"max_lines_per_file"`
	FileTimeout     time.Duration `yaml:"file_timeout"`
	Timeout         time.Duration `yaml:"timeout"`
	BatchSize       int           `yaml:"batch_size"`
	NestedTags      bool          `yaml:"nested_tags"`
	MaxTagLength    int           `yaml:"max_tag_length"`
	MaxTagDepth     int           `yaml:"max_tag_depth"`
}

// Validate validates the extraction configuration.
func (c *ExtractConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxFiles, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxFileSize, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.MaxLinesPerFile, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxTagLength, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxTagDepth, validation.Required, validation.Min(1)),
	)
}

// CompletionConfig holds completion facade limits.
type CompletionConfig struct {
	MaxItems int  `yaml:"max_items"`
	Fuzzy    bool `yaml:"fuzzy"`
}

// Validate validates the completion configuration.
func (c *CompletionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxItems, validation.Required, validation.Min(1), validation.Max(500)),
	)
}

// TunerConfig holds auto-tuner settings.
type TunerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Interval          time.Duration `yaml:"interval"`
	LearningRate      float64       `yaml:"learning_rate"`
	RollbackThreshold float64       `yaml:"rollback_threshold"`
}

// Validate validates the tuner configuration.
func (c *TunerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Required),
		validation.Field(&c.LearningRate, validation.Required, validation.Min(0.01), validation.Max(1.0)),
		validation.Field(&c.RollbackThreshold, validation.Required, validation.Min(0.01), validation.Max(1.0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:     "./vault",
			Includes: []string{".md", ".markdown"},
			Excludes: []string{
				".git", ".obsidian", "node_modules", "vendor",
				".cache", "*.log", "*.lock",
			},
		},
		SQLite: SQLiteConfig{
			Path: "./ansuz.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Ripgrep: RipgrepConfig{
			Binary:      "rg",
			Threads:     2,
			MaxFilesize: "1M",
			MaxColumns:  500,
			MaxDepth:    10,
			Timeout:     5 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
			MaxBytes:        16 << 20,
			Strategy:        EvictLRU,
		},
		Jobs: JobsConfig{
			MaxConcurrent:  4,
			MaxQueued:      64,
			DefaultTimeout: 10 * time.Second,
			RetryDelay:     500 * time.Millisecond,
		},
		Extract: ExtractConfig{
			MaxFiles:        2000,
			MaxFileSize:     1 << 20,
			MaxLinesPerFile: 2000,
			FileTimeout:     time.Second,
			Timeout:         15 * time.Second,
			BatchSize:       50,
			NestedTags:      true,
			MaxTagLength:    100,
			MaxTagDepth:     5,
		},
		Completion: CompletionConfig{
			MaxItems: 50,
			Fuzzy:    true,
		},
		Tuner: TunerConfig{
			Enabled:           true,
			Interval:          30 * time.Second,
			LearningRate:      0.1,
			RollbackThreshold: 0.1,
		},
	}
}
