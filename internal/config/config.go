package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ICSConfig describes the iCal media-release feed source.
type ICSConfig struct {
	// BaseURL is the feed host, e.g. "https://releases.example.com".
	BaseURL string `yaml:"base_url" json:"base_url" env:"CALWATCH_ICS_BASE_URL"`
	// APIKey is appended as the apikey query parameter. Secret; usually
	// injected via environment rather than the config file.
	APIKey string `yaml:"api_key" json:"api_key" env:"CALWATCH_ICS_API_KEY"`
	// Feed is the calendar name in the /feed/v3/calendar/<Feed>.ics path.
	Feed string `yaml:"feed" json:"feed"`
	// Name is the logical source name stamped on produced events.
	Name string `yaml:"name" json:"name"`
}

// TranscriptConfig describes the calendar-tool transcript source.
type TranscriptConfig struct {
	// Command is the tool binary that emits the listing transcript.
	Command string `yaml:"command" json:"command"`
	// WorkDir is the directory the tool runs in.
	WorkDir string `yaml:"workdir" json:"workdir"`
	// CalendarID is the identifier passed to the lookup tool.
	CalendarID string `yaml:"calendar_id" json:"calendar_id" env:"CALWATCH_CALENDAR_ID"`
	// Name is the logical source name stamped on produced events.
	Name string `yaml:"name" json:"name"`
}

// DispatchConfig describes the external action runner.
type DispatchConfig struct {
	// Command is the action runner binary invoked once per matched event.
	Command string `yaml:"command" json:"command"`
	// LogPath is the append-only file receiving the runner's stderr.
	LogPath string `yaml:"log_path" json:"log_path"`
}

// Config is the top-level application configuration.
type Config struct {
	// Schedule is a cron expression for periodic runs. The default fires
	// on every half-hour boundary, matching the window cadence.
	Schedule string `yaml:"schedule" json:"schedule"`

	ICS        ICSConfig        `yaml:"ics" json:"ics"`
	Transcript TranscriptConfig `yaml:"transcript" json:"transcript"`
	Dispatch   DispatchConfig   `yaml:"dispatch" json:"dispatch"`
}

// ConfigError reports a missing required credential or identifier. It is
// fatal: no fetch is attempted when validation fails.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: required field %s is not set", e.Field)
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Schedule: "0,30 * * * *",
		ICS: ICSConfig{
			Feed: "Releases",
			Name: "media-releases",
		},
		Transcript: TranscriptConfig{
			Command: "calendar-tool",
			Name:    "calendar-transcript",
		},
		Dispatch: DispatchConfig{
			LogPath: "trigger.log",
		},
	}
}

// Normalize fills in missing values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Schedule == "" {
		c.Schedule = "0,30 * * * *"
	}
	if c.ICS.Feed == "" {
		c.ICS.Feed = "Releases"
	}
	if c.ICS.Name == "" {
		c.ICS.Name = "media-releases"
	}
	if c.Transcript.Command == "" {
		c.Transcript.Command = "calendar-tool"
	}
	if c.Transcript.Name == "" {
		c.Transcript.Name = "calendar-transcript"
	}
	if c.Dispatch.LogPath == "" {
		c.Dispatch.LogPath = "trigger.log"
	}
}

// Validate checks that every credential and identifier needed before the
// first fetch is present. Returns a *ConfigError naming the first
// missing field.
func (c *Config) Validate() error {
	if c.ICS.BaseURL == "" {
		return &ConfigError{Field: "ics.base_url"}
	}
	if c.ICS.APIKey == "" {
		return &ConfigError{Field: "ics.api_key"}
	}
	if c.Transcript.CalendarID == "" {
		return &ConfigError{Field: "transcript.calendar_id"}
	}
	if c.Dispatch.Command == "" {
		return &ConfigError{Field: "dispatch.command"}
	}
	return nil
}

// Load loads configuration from the given YAML path, then overlays
// environment variables (env tags above) so secrets never need to live
// in the file.
//
// If the file does not exist, a default config is written there with
// 0600 perms and returned; first runs produce a template to fill in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	default:
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config env overlay: %w", err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with
// 0600 permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calwatch-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
