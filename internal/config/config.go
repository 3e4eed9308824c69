package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config represents the gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Backend  BackendConfig  `yaml:"backend"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	APIKeys []APIKey `yaml:"api_keys"`
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// BackendConfig contains orchestration backend connection settings
type BackendConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"` // Optional: forwarded as X-API-Key
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig describes the pipeline shape the views expect
type PipelineConfig struct {
	TerminalStage            string        `yaml:"terminal_stage"`
	TerminalStageDescription string        `yaml:"terminal_stage_description"`
	InternalStages           []string      `yaml:"internal_stages"`
	DetailPollInterval       time.Duration `yaml:"detail_poll_interval"`
	ListPollInterval         time.Duration `yaml:"list_poll_interval"`
	ListLimit                int           `yaml:"list_limit"`
	CatalogFile              string        `yaml:"catalog_file"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// FromEnv builds the configuration from environment variables only
func FromEnv() (*Config, error) {
	var errs error
	cfg := Config{
		Backend: BackendConfig{
			URL:    os.Getenv("BACKEND_URL"),
			APIKey: os.Getenv("BACKEND_API_KEY"),
		},
		Pipeline: PipelineConfig{
			TerminalStage:            os.Getenv("PIPELINE_TERMINAL_STAGE"),
			TerminalStageDescription: os.Getenv("PIPELINE_TERMINAL_STAGE_DESCRIPTION"),
			InternalStages:           splitList(os.Getenv("PIPELINE_INTERNAL_STAGES")),
			CatalogFile:              os.Getenv("PIPELINE_CATALOG_FILE"),
		},
		Logging: LoggingConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
	}

	cfg.Server.Port, errs = envInt("PORT", errs)
	cfg.Pipeline.ListLimit, errs = envInt("PIPELINE_LIST_LIMIT", errs)
	cfg.Backend.Timeout, errs = envDuration("BACKEND_TIMEOUT", errs)
	cfg.Server.ReadTimeout, errs = envDuration("SERVER_READ_TIMEOUT", errs)
	cfg.Server.WriteTimeout, errs = envDuration("SERVER_WRITE_TIMEOUT", errs)
	cfg.Pipeline.DetailPollInterval, errs = envDuration("PIPELINE_DETAIL_POLL_INTERVAL", errs)
	cfg.Pipeline.ListPollInterval, errs = envDuration("PIPELINE_LIST_POLL_INTERVAL", errs)

	// API_KEYS=name:key,name2:key2
	for _, pair := range splitList(os.Getenv("API_KEYS")) {
		name, key, ok := strings.Cut(pair, ":")
		if !ok || key == "" {
			errs = multierr.Append(errs, fmt.Errorf("API_KEYS entry %q must be name:key", pair))
			continue
		}
		cfg.Auth.APIKeys = append(cfg.Auth.APIKeys, APIKey{Name: name, Key: key})
	}

	if errs != nil {
		return nil, errs
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}
	if c.Pipeline.TerminalStage == "" {
		c.Pipeline.TerminalStage = "publish_script"
	}
	if c.Pipeline.TerminalStageDescription == "" {
		c.Pipeline.TerminalStageDescription = "Waiting for the publishing step to start"
	}
	if c.Pipeline.InternalStages == nil {
		c.Pipeline.InternalStages = []string{"load_config", "save_result"}
	}
	if c.Pipeline.DetailPollInterval == 0 {
		c.Pipeline.DetailPollInterval = 5 * time.Second
	}
	if c.Pipeline.ListPollInterval == 0 {
		c.Pipeline.ListPollInterval = 10 * time.Second
	}
	if c.Pipeline.ListLimit == 0 {
		c.Pipeline.ListLimit = 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs error

	if c.Backend.URL == "" {
		errs = multierr.Append(errs, errors.New("backend.url is required"))
	} else if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("backend.url %q is not an absolute url", c.Backend.URL))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Pipeline.DetailPollInterval < 0 || c.Pipeline.ListPollInterval < 0 {
		errs = multierr.Append(errs, errors.New("pipeline poll intervals must be positive"))
	}
	if c.Pipeline.ListLimit < 0 {
		errs = multierr.Append(errs, fmt.Errorf("pipeline.list_limit %d must not be negative", c.Pipeline.ListLimit))
	}
	for _, s := range c.Pipeline.InternalStages {
		if s == c.Pipeline.TerminalStage && s != "" {
			errs = multierr.Append(errs, fmt.Errorf("terminal stage %q cannot also be internal", s))
		}
	}

	seen := make(map[string]bool, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if k.Key == "" {
			errs = multierr.Append(errs, fmt.Errorf("auth.api_keys[%d] (%s) has an empty key", i, k.Name))
		}
		if seen[k.Key] && k.Key != "" {
			errs = multierr.Append(errs, fmt.Errorf("auth.api_keys[%d] (%s) duplicates another key", i, k.Name))
		}
		seen[k.Key] = true
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	return errs
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, errs error) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
	}
	return n, errs
}

func envDuration(key string, errs error) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
	}
	return d, errs
}
