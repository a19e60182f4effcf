package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources    Sources    `yaml:"sources"`
	Keywords   []string   `yaml:"keywords"`
	Fetch      Fetch      `yaml:"fetch"`
	Merge      Merge      `yaml:"merge"`
	Extraction Extraction `yaml:"extraction"`
	Database   Database   `yaml:"database"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
}

type Sources struct {
	NewAge    Listing `yaml:"newage"`
	DailyStar Listing `yaml:"dailystar"`
	Alerts    Alerts  `yaml:"alerts"`
}

type Listing struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	MaxPages int    `yaml:"max_pages"`
}

type Alerts struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// json, csv or atom
	Format      string `yaml:"format"`
	SlackDays   int    `yaml:"slack_days"`
	OffsetHours int    `yaml:"offset_hours"`
}

type Fetch struct {
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	Retries           int     `yaml:"retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	UserAgent         string  `yaml:"user_agent"`
}

type Merge struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxBucket           int     `yaml:"max_bucket"`
}

type Extraction struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	EnvFile     string `yaml:"env_file"`
	MaxTokens   int    `yaml:"max_tokens"`
	Concurrency int    `yaml:"concurrency"`
}

type Database struct {
	// sqlite or mysql
	Driver string `yaml:"driver"`
	// DSN for mysql; for sqlite an optional file path overriding the data dir
	DSN string `yaml:"dsn"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigDir returns the XDG config directory for accidentwatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "accidentwatch")
}

// DataDir returns the XDG data directory for accidentwatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "accidentwatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/accidentwatch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'accidentwatch init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			NewAge:    Listing{Enabled: true, MaxPages: 5},
			DailyStar: Listing{Enabled: true, MaxPages: 5},
			Alerts:    Alerts{Format: "json", SlackDays: 2, OffsetHours: 12},
		},
		Fetch: Fetch{
			TimeoutSeconds: 20,
			Retries:        3,
		},
		Merge: Merge{
			SimilarityThreshold: 0.9,
			MaxBucket:           2000,
		},
		Extraction: Extraction{
			Provider:    "openai",
			Model:       "llama3.1:8b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o",
			APIKeyEnv:   "OPENAI_API_KEY",
			EnvFile:     ".env",
			MaxTokens:   4000,
			Concurrency: 1,
		},
		Database: Database{Driver: "sqlite"},
		Server:   Server{Port: 8000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	switch cfg.Database.Driver {
	case "sqlite", "mysql":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "mysql" && cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required for mysql")
	}
	if cfg.Merge.SimilarityThreshold <= 0 || cfg.Merge.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("merge.similarity_threshold must be in (0, 1], got %v", cfg.Merge.SimilarityThreshold)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabaseTarget returns the driver and the path or DSN to open.
func (c *Config) DatabaseTarget() (driver, target string) {
	if c.Database.Driver == "mysql" {
		return "mysql", c.Database.DSN
	}
	if c.Database.DSN != "" {
		return "sqlite", c.Database.DSN
	}
	return "sqlite", filepath.Join(c.GetDataDir(), "accidentwatch.db")
}

// FetchTimeout returns the per-request timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// AlertSlack returns how far before the newest stored alert the feed is read.
func (c *Config) AlertSlack() time.Duration {
	return time.Duration(c.Sources.Alerts.SlackDays) * 24 * time.Hour
}

// AlertOffset returns the shift applied to alert feed timestamps.
func (c *Config) AlertOffset() time.Duration {
	return time.Duration(c.Sources.Alerts.OffsetHours) * time.Hour
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
