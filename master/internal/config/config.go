package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vantagehq/vantage/master/internal/dispatch"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultListenAddr = ":8080"
	DefaultProbesPath = "probes.yaml"
	DefaultUsersPath  = "users.yaml"
)

// Config holds all master-side settings. Fields map 1:1 to
// master.example.yaml.
type Config struct {
	// ListenAddr is the address the agent-facing API binds.
	ListenAddr string `yaml:"listen_addr"`

	// Datacenter names this deployment in every notification.
	Datacenter string `yaml:"datacenter"`

	// ProbesPath is the probe repository file.
	ProbesPath string `yaml:"probes_path"`

	// UsersPath is the user directory file.
	UsersPath string `yaml:"users_path"`

	// Notify enables notification channels. A nil channel section
	// leaves that channel unregistered.
	Notify NotifyConfig `yaml:"notify"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
}

// NotifyConfig collects per-channel settings. Secrets stay in the
// environment; the yaml names only the variables that hold them.
type NotifyConfig struct {
	Email   *dispatch.EmailConfig `yaml:"email"`
	SMS     *dispatch.SMSConfig   `yaml:"sms"`
	Chat    *dispatch.ChatConfig  `yaml:"chat"`
	Webhook bool                  `yaml:"webhook"`
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

func defaults() *Config {
	return &Config{
		ListenAddr: DefaultListenAddr,
		ProbesPath: DefaultProbesPath,
		UsersPath:  DefaultUsersPath,
	}
}

func validate(cfg *Config) error {
	if cfg.Datacenter == "" {
		return fmt.Errorf("datacenter is required")
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if e := cfg.Notify.Email; e != nil {
		if e.From == "" {
			return fmt.Errorf("notify.email.from is required")
		}
		if e.SMTPAddr == "" && e.SendmailPath == "" {
			return fmt.Errorf("notify.email needs smtp_addr or sendmail_path")
		}
	}
	if s := cfg.Notify.SMS; s != nil {
		if s.GatewayURL == "" {
			return fmt.Errorf("notify.sms.gateway_url is required")
		}
		if s.From == "" {
			return fmt.Errorf("notify.sms.from is required")
		}
	}
	if c := cfg.Notify.Chat; c != nil {
		if c.Host == "" || c.Port == 0 {
			return fmt.Errorf("notify.chat needs host and port")
		}
	}
	return nil
}
