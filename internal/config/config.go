// Package config holds the on-disk configuration and the .env
// credential loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Scrape   ScrapeConfig   `toml:"scrape"`
	Browser  BrowserConfig  `toml:"browser"`
	Output   OutputConfig   `toml:"output"`
	Archive  ArchiveConfig  `toml:"archive"`
	Schedule ScheduleConfig `toml:"schedule"`
}

type ScrapeConfig struct {
	MaxPosts       int  `toml:"max_posts"`
	Window         int  `toml:"window"`
	RetryWaitSecs  int  `toml:"retry_wait_secs"`
	MaxRetries     int  `toml:"max_retries"`
	MaxEmptyRuns   int  `toml:"max_empty_runs"`
	MaxRefreshes   int  `toml:"max_refreshes"`
	SettleSecs     int  `toml:"settle_secs"`
	ResolveTimeout int  `toml:"resolve_timeout_secs"`
	AuthorDetails  bool `toml:"author_details"`
}

type BrowserConfig struct {
	Headless  bool   `toml:"headless"`
	Proxy     string `toml:"proxy"`
	UserAgent string `toml:"user_agent"`
}

type OutputConfig struct {
	Dir    string `toml:"dir"`
	Format string `toml:"format"` // csv or jsonl
}

type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type ScheduleConfig struct {
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Scrape: ScrapeConfig{
			MaxPosts:       50,
			Window:         15,
			RetryWaitSecs:  600,
			MaxRetries:     15,
			MaxEmptyRuns:   5,
			MaxRefreshes:   3,
			SettleSecs:     3,
			ResolveTimeout: 10,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Output: OutputConfig{
			Dir:    "./tweets",
			Format: "csv",
		},
		Archive: ArchiveConfig{},
		Schedule: ScheduleConfig{
			Timezone: "Local",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "xharvest"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from disk, falling back to defaults when no file
// exists yet.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// Env holds the values read from the environment / .env file.
type Env struct {
	Username string
	Password string
	// Headless overrides Browser.Headless when the HEADLESS variable
	// is set.
	Headless *bool
}

// LoadEnv reads credentials from a .env file (if present) and the
// process environment.
func LoadEnv() Env {
	godotenv.Load()

	env := Env{
		Username: os.Getenv("TWITTER_USERNAME"),
		Password: os.Getenv("TWITTER_PASSWORD"),
	}
	if raw, ok := os.LookupEnv("HEADLESS"); ok {
		v := strings.EqualFold(raw, "yes") || strings.EqualFold(raw, "true") || raw == "1"
		env.Headless = &v
	}
	return env
}

// Validate reports configuration errors before any browser
// interaction begins.
func (e Env) Validate() error {
	if e.Username == "" || e.Password == "" {
		return fmt.Errorf("missing TWITTER_USERNAME or TWITTER_PASSWORD; check your .env file")
	}
	return nil
}
