// Package config loads dbooru's optional YAML configuration.
//
// The file is named by the --config flag or the DBOORU_CONFIG environment
// variable. Without either, Default is used. Command-line flags override
// whatever the file sets.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "DBOORU_CONFIG"

// Config is the complete dbooru configuration.
type Config struct {
	// Root is the store directory holding dbooru.db, files/ and tmp/.
	Root string `yaml:"root"`

	Mount MountConfig `yaml:"mount"`
	Log   LogConfig   `yaml:"log"`
	Store StoreConfig `yaml:"store"`
}

// MountConfig configures the FUSE mount.
type MountConfig struct {
	FSName     string `yaml:"fsname"`
	AllowOther bool   `yaml:"allow_other"`

	// EntryTimeout and AttrTimeout bound how long the kernel caches names
	// and attributes of committed blobs.
	EntryTimeout time.Duration `yaml:"entry_timeout"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
}

// LogConfig configures the slog handler on stderr.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// StoreConfig tunes the backend.
type StoreConfig struct {
	// PoolSize is the number of metadata connections. Zero picks a default.
	PoolSize int `yaml:"pool_size"`
	// HashChunkSize is the read size used when hashing blobs.
	HashChunkSize int `yaml:"hash_chunk_size"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Root: filepath.Join(home, ".dbooru"),
		Mount: MountConfig{
			FSName:       "dbooru",
			EntryTimeout: time.Minute,
			AttrTimeout:  time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			HashChunkSize: 10 << 20,
		},
	}
}

// Load reads the file named by path, or by DBOORU_CONFIG when path is
// empty. With neither set it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults and expands ${VAR} references.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Root = expandVars(c.Root, vars)
	c.Mount.FSName = expandVars(c.Mount.FSName, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if v, ok := vars[name]; ok && v != "" {
			return v
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
		return fallback
	})
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("root is required"))
	}
	if c.Mount.EntryTimeout < 0 {
		errs = append(errs, errors.New("mount.entry_timeout must not be negative"))
	}
	if c.Mount.AttrTimeout < 0 {
		errs = append(errs, errors.New("mount.attr_timeout must not be negative"))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}
	if c.Store.PoolSize < 0 {
		errs = append(errs, errors.New("store.pool_size must not be negative"))
	}
	if c.Store.HashChunkSize < 0 {
		errs = append(errs, errors.New("store.hash_chunk_size must not be negative"))
	}
	return errors.Join(errs...)
}

// Level parses Log.Level, defaulting to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Logger builds a logger writing to w in the configured format and level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
