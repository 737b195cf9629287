package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		ICS: ICSConfig{
			BaseURL: "https://releases.example.com",
			APIKey:  "secret",
		},
		Transcript: TranscriptConfig{
			CalendarID: "primary",
		},
		Dispatch: DispatchConfig{
			Command: "/usr/local/bin/act",
		},
	}
}

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Schedule != "0,30 * * * *" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if cfg.Dispatch.LogPath != "trigger.log" {
		t.Errorf("LogPath = %q", cfg.Dispatch.LogPath)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`schedule: "*/15 * * * *"
ics:
  base_url: https://releases.example.com
  api_key: from-file
  feed: Films
transcript:
  calendar_id: work
dispatch:
  command: /usr/local/bin/act
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Schedule != "*/15 * * * *" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if cfg.ICS.Feed != "Films" || cfg.ICS.APIKey != "from-file" {
		t.Errorf("ICS = %+v", cfg.ICS)
	}
	// Defaults still fill unset fields.
	if cfg.Dispatch.LogPath != "trigger.log" {
		t.Errorf("LogPath = %q", cfg.Dispatch.LogPath)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`ics:
  base_url: https://releases.example.com
  api_key: from-file
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CALWATCH_ICS_API_KEY", "from-env")
	t.Setenv("CALWATCH_CALENDAR_ID", "env-calendar")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ICS.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env value", cfg.ICS.APIKey)
	}
	if cfg.Transcript.CalendarID != "env-calendar" {
		t.Errorf("CalendarID = %q, want env value", cfg.Transcript.CalendarID)
	}
}

func TestValidateReportsFirstMissingField(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"missing base url", func(c *Config) { c.ICS.BaseURL = "" }, "ics.base_url"},
		{"missing api key", func(c *Config) { c.ICS.APIKey = "" }, "ics.api_key"},
		{"missing calendar id", func(c *Config) { c.Transcript.CalendarID = "" }, "transcript.calendar_id"},
		{"missing dispatch command", func(c *Config) { c.Dispatch.Command = "" }, "dispatch.command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var confErr *ConfigError
			if !errors.As(err, &confErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if confErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", confErr.Field, tt.wantField)
			}
		})
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
