package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/lei/runwatch/internal/api"
	"github.com/lei/runwatch/internal/backend"
	"github.com/lei/runwatch/internal/config"
	"github.com/lei/runwatch/internal/reconcile"
	"github.com/lei/runwatch/internal/service"
	"github.com/lei/runwatch/pkg/logger"
)

// Gateway represents a runwatch gateway instance that can be embedded in applications
type Gateway struct {
	config  *Config
	service *service.Service
	router  http.Handler
	server  *http.Server
	logger  *logger.Logger
}

// Config holds the configuration for the Gateway
type Config struct {
	// Server configuration
	Server ServerConfig

	// Authentication of the gateway's own API
	Auth AuthConfig

	// Orchestration backend the runs are read from
	Backend BackendConfig

	// Expected pipeline shape
	Pipeline PipelineConfig

	// Logger configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// APIKeys is a list of API keys for authentication
	APIKeys []APIKey
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string
	Key  string
}

// BackendConfig holds orchestration backend connection settings
type BackendConfig struct {
	URL     string
	APIKey  string // optional, sent as X-API-Key
	Timeout time.Duration
}

// PipelineConfig describes the stages a run is expected to have
type PipelineConfig struct {
	TerminalStage            string
	TerminalStageDescription string
	InternalStages           []string

	// Descriptions shown for stages that have not reported yet
	Descriptions map[string]string

	// DisplayNames replaces raw stage names in the views
	DisplayNames map[string]string

	DetailPollInterval time.Duration
	ListPollInterval   time.Duration
	ListLimit          int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text

	// Output defaults to stdout. Terminal views pass a file here.
	Output io.Writer
}

// New creates a new Gateway instance with the provided configuration
func New(cfg *Config) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	internal := cfg.toInternal()
	internal.ApplyDefaults()
	if err := internal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.applyDefaults(internal)

	out := cfg.Logging.Output
	if out == nil {
		out = os.Stdout
	}
	appLogger := logger.NewWithWriter(cfg.Logging.Level, cfg.Logging.Format, out)

	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, cfg.Backend.Timeout, appLogger)
	appLogger.Info("initialized backend client", "url", cfg.Backend.URL, "timeout", cfg.Backend.Timeout.String())

	svc := service.NewService(client, service.Options{
		Pipeline: reconcile.Pipeline{
			InternalStages:      cfg.Pipeline.InternalStages,
			TerminalStage:       cfg.Pipeline.TerminalStage,
			TerminalDescription: cfg.Pipeline.TerminalStageDescription,
			Descriptions:        cfg.Pipeline.Descriptions,
			DisplayNames:        cfg.Pipeline.DisplayNames,
		},
		ListLimit:      cfg.Pipeline.ListLimit,
		DetailInterval: cfg.Pipeline.DetailPollInterval,
		ListInterval:   cfg.Pipeline.ListPollInterval,
	}, appLogger)

	handlers := api.NewHandlers(svc)
	authMiddleware := api.NewAuthMiddleware(internal.Auth.APIKeys)
	loggingMiddleware := api.NewLoggingMiddleware(appLogger)
	router := api.NewRouter(handlers, authMiddleware, loggingMiddleware)

	// WriteTimeout would cut the live event stream, so only reads are bounded
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	return &Gateway{
		config:  cfg,
		service: svc,
		router:  router,
		server:  srv,
		logger:  appLogger,
	}, nil
}

// toInternal converts to the internal config so the same validation applies
func (c *Config) toInternal() *config.Config {
	keys := make([]config.APIKey, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		keys[i] = config.APIKey{Name: k.Name, Key: k.Key}
	}
	return &config.Config{
		Server: config.ServerConfig{
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Auth: config.AuthConfig{APIKeys: keys},
		Backend: config.BackendConfig{
			URL:     c.Backend.URL,
			APIKey:  c.Backend.APIKey,
			Timeout: c.Backend.Timeout,
		},
		Pipeline: config.PipelineConfig{
			TerminalStage:            c.Pipeline.TerminalStage,
			TerminalStageDescription: c.Pipeline.TerminalStageDescription,
			InternalStages:           c.Pipeline.InternalStages,
			DetailPollInterval:       c.Pipeline.DetailPollInterval,
			ListPollInterval:         c.Pipeline.ListPollInterval,
			ListLimit:                c.Pipeline.ListLimit,
		},
		Logging: config.LoggingConfig{
			Level:  c.Logging.Level,
			Format: c.Logging.Format,
		},
	}
}

// applyDefaults copies defaulted values back from the internal config
func (c *Config) applyDefaults(in *config.Config) {
	c.Server.Port = in.Server.Port
	c.Server.ReadTimeout = in.Server.ReadTimeout
	c.Server.WriteTimeout = in.Server.WriteTimeout
	c.Backend.Timeout = in.Backend.Timeout
	c.Pipeline.TerminalStage = in.Pipeline.TerminalStage
	c.Pipeline.TerminalStageDescription = in.Pipeline.TerminalStageDescription
	c.Pipeline.InternalStages = in.Pipeline.InternalStages
	c.Pipeline.DetailPollInterval = in.Pipeline.DetailPollInterval
	c.Pipeline.ListPollInterval = in.Pipeline.ListPollInterval
	c.Pipeline.ListLimit = in.Pipeline.ListLimit
	c.Logging.Level = in.Logging.Level
	c.Logging.Format = in.Logging.Format
}

// Start starts the HTTP server
// This is a blocking call that will run until the context is canceled or an error occurs
func (g *Gateway) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		g.logger.Info("starting http server", "port", g.config.Server.Port)
		serverErrors <- g.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		g.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.config.Server.WriteTimeout)
		defer cancel()

		if err := g.server.Shutdown(shutdownCtx); err != nil {
			g.server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		g.logger.Info("server stopped gracefully")
		return nil
	}
}

// Handler returns the http.Handler for the gateway
// Use this if you want to integrate the gateway into an existing HTTP server
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Service returns the underlying service layer
// Use this for direct programmatic access to snapshots and actions
func (g *Gateway) Service() *service.Service {
	return g.service
}

// Logger returns the gateway's logger
func (g *Gateway) Logger() *logger.Logger {
	return g.logger
}

// Close flushes buffered log entries
func (g *Gateway) Close() error {
	return g.logger.Sync()
}

// NewFromEnv creates a Gateway from environment variables, as the standalone
// binary does. PIPELINE_CATALOG_FILE, when set, annotates the pipeline.
func NewFromEnv() (*Gateway, error) {
	cfg, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// NewFromFile creates a Gateway from a YAML config file. out overrides where
// logs are written; nil means stdout.
func NewFromFile(path string, out io.Writer) (*Gateway, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Output = out
	return New(cfg)
}

// LoadConfig reads a YAML config file, or the environment when path is empty,
// and applies the stage catalog it references. The result is not validated
// until it is passed to New, so callers may override fields first.
func LoadConfig(path string) (*Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	gwCfg := &Config{
		Server: ServerConfig{
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		Backend: BackendConfig{
			URL:     cfg.Backend.URL,
			APIKey:  cfg.Backend.APIKey,
			Timeout: cfg.Backend.Timeout,
		},
		Pipeline: PipelineConfig{
			TerminalStage:            cfg.Pipeline.TerminalStage,
			TerminalStageDescription: cfg.Pipeline.TerminalStageDescription,
			InternalStages:           cfg.Pipeline.InternalStages,
			DetailPollInterval:       cfg.Pipeline.DetailPollInterval,
			ListPollInterval:         cfg.Pipeline.ListPollInterval,
			ListLimit:                cfg.Pipeline.ListLimit,
		},
		Logging: LoggingConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		},
	}
	for _, k := range cfg.Auth.APIKeys {
		gwCfg.Auth.APIKeys = append(gwCfg.Auth.APIKeys, APIKey{Name: k.Name, Key: k.Key})
	}

	if path := cfg.Pipeline.CatalogFile; path != "" {
		if err := applyCatalog(gwCfg, path); err != nil {
			return nil, err
		}
	}
	return gwCfg, nil
}

// applyCatalog loads the stage catalog and lets it refine the pipeline shape
func applyCatalog(cfg *Config, path string) error {
	catalog, err := config.LoadStageCatalog(path)
	if err != nil {
		return err
	}
	if res := catalog.Validate(); !res.OK() {
		return res
	}

	if terminal := catalog.TerminalStage(); terminal != "" {
		cfg.Pipeline.TerminalStage = terminal
	}
	if internal := catalog.InternalStages(); len(internal) > 0 {
		cfg.Pipeline.InternalStages = internal
	}
	cfg.Pipeline.Descriptions = catalog.Descriptions()
	cfg.Pipeline.DisplayNames = catalog.DisplayNames()
	return nil
}
