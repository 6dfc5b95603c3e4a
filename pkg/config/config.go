package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all meshdb configuration. It is passed explicitly to the
// components that need paths or URLs.
type Config struct {
	// MeSH release year, e.g. "2017".
	Year string `yaml:"year"`

	// Directory for downloaded archives and JSON caches.
	DataDir string `yaml:"data_dir"`

	// Base URL of the NLM xmlmesh directory.
	BaseURL string `yaml:"base_url"`

	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Download DownloadConfig `yaml:"download"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path defaults to mesh.db inside DataDir.
	Path string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DownloadConfig configures archive downloads.
type DownloadConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dataDir := "data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".meshdb")
	}
	return &Config{
		Year:    "2017",
		DataDir: dataDir,
		BaseURL: "https://nlmpubs.nlm.nih.gov/projects/mesh/MESH_FILES/xmlmesh",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Download: DownloadConfig{
			TimeoutSeconds: 600,
			UserAgent:      "meshdb-cli",
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. A missing file is not an error. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("MESHDB_DATA_DIR")); v != "" {
		c.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("MESHDB_YEAR")); v != "" {
		c.Year = v
	}
	if v := strings.TrimSpace(os.Getenv("MESHDB_DATABASE")); v != "" {
		c.Database.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("MESHDB_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("MESHDB_BASE_URL")); v != "" {
		c.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MESHDB_DOWNLOAD_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Download.TimeoutSeconds = n
		}
	}
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if len(c.Year) != 4 {
		return fmt.Errorf("config: year must have four digits, got %q", c.Year)
	}
	if _, err := strconv.Atoi(c.Year); err != nil {
		return fmt.Errorf("config: year must be numeric, got %q", c.Year)
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	return nil
}

// DatabasePath is the SQLite store location. An unset path follows DataDir.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "mesh.db")
}

// DescriptorURL is the remote descriptor archive for the configured year.
func (c *Config) DescriptorURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/desc" + c.Year + ".gz"
}

// SupplementURL is the remote supplemental-record archive for the configured year.
func (c *Config) SupplementURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/supp" + c.Year + ".gz"
}

// DescriptorPath is where the descriptor archive is stored locally.
func (c *Config) DescriptorPath() string {
	return filepath.Join(c.DataDir, "desc"+c.Year+".gz")
}

// SupplementPath is where the supplemental archive is stored locally.
func (c *Config) SupplementPath() string {
	return filepath.Join(c.DataDir, "supp"+c.Year+".gz")
}

// DescriptorCachePath is the JSON cache of parsed descriptors.
func (c *Config) DescriptorCachePath() string {
	return filepath.Join(c.DataDir, "desc"+c.Year+".json")
}

// SupplementCachePath is the JSON cache of parsed supplemental records.
func (c *Config) SupplementCachePath() string {
	return filepath.Join(c.DataDir, "supp"+c.Year+".json")
}

// EnsureDataDir creates the data directory if needed.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o755)
}
