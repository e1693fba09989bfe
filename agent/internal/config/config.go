package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval     = 60 * time.Second
	DefaultZoneEventCommand = "/usr/vm/sbin/zoneevent"
	DefaultEventBuffer      = 256
	DefaultTmpDir           = "/var/run/vantage"
)

// Config holds all agent-side settings. Fields map 1:1 to
// agent.example.yaml.
type Config struct {
	// MasterURL is the base URL of the vantage master API.
	MasterURL string `yaml:"master_url"`

	// PollInterval controls how often each zone's probe config is
	// re-synced against the master.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ZoneEventCommand is the platform binary emitting zone lifecycle
	// transitions as line-delimited JSON on stdout.
	ZoneEventCommand string `yaml:"zone_event_command"`

	// TmpDir is scratch space for probe working files.
	TmpDir string `yaml:"tmp_dir"`

	// EventBuffer is the maximum number of events held in memory when
	// the master is unreachable.
	EventBuffer int `yaml:"event_buffer"`

	// Zones optionally pins the zone set to manage instead of
	// discovering it from the event stream. Mostly for development.
	Zones []string `yaml:"zones"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
}

// Load reads and parses the YAML config file at path. Missing optional
// fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		PollInterval:     DefaultPollInterval,
		ZoneEventCommand: DefaultZoneEventCommand,
		EventBuffer:      DefaultEventBuffer,
		TmpDir:           DefaultTmpDir,
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.MasterURL == "" {
		return fmt.Errorf("master_url is required")
	}
	u, err := url.Parse(cfg.MasterURL)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("master_url must be a valid http(s) url")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if cfg.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive")
	}
	if cfg.ZoneEventCommand == "" {
		return fmt.Errorf("zone_event_command is required")
	}
	return nil
}
