package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lei/runwatch/internal/backend"
	"github.com/lei/runwatch/internal/models"
	"github.com/lei/runwatch/internal/output"
	"github.com/lei/runwatch/internal/reconcile"
	"github.com/lei/runwatch/pkg/logger"
)

var (
	// ErrStageNotFound indicates the run has no stage with the requested name
	ErrStageNotFound = errors.New("stage not found")
	// ErrNoOutput indicates the stage exists but has produced nothing to export
	ErrNoOutput = errors.New("stage has no output")
)

// Backend is the subset of the orchestration backend the service relies on
type Backend interface {
	GetWorkflowResult(ctx context.Context, id models.RunIdentity) (*models.RunReport, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
	Terminate(ctx context.Context, id models.RunIdentity, reason string) (*backend.Envelope, error)
	RetryStage(ctx context.Context, id models.RunIdentity, stage string) (*backend.Envelope, error)
	ListAPIKeys(ctx context.Context) (json.RawMessage, error)
	SetAPIKey(ctx context.Context, service, key string) (json.RawMessage, error)
	DeleteAPIKey(ctx context.Context, service string) error
	Ping(ctx context.Context) error
}

// Options tune how snapshots are built and refreshed
type Options struct {
	Pipeline       reconcile.Pipeline
	ListLimit      int
	DetailInterval time.Duration
	ListInterval   time.Duration

	// Now is the clock stamped on snapshots; nil means time.Now
	Now func() time.Time
}

// Service coordinates the backend, reconciliation and output layers. Both
// the HTTP API and the terminal views go through it.
type Service struct {
	backend Backend
	opts    Options
	logger  *logger.Logger
}

// StageOutput is one stage together with its classified output
type StageOutput struct {
	Identity       models.RunIdentity     `json:"identity"`
	Stage          models.NormalizedStage `json:"stage"`
	Classification output.Classification  `json:"classification"`
}

// RetryResult reports which stage a retry was issued for
type RetryResult struct {
	Stage    string            `json:"stage"`
	Envelope *backend.Envelope `json:"response"`
}

// NewService creates a new service instance
func NewService(b Backend, opts Options, log *logger.Logger) *Service {
	if opts.Pipeline.TerminalStage == "" && opts.Pipeline.InternalStages == nil {
		opts.Pipeline = reconcile.DefaultPipeline()
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{backend: b, opts: opts, logger: log}
}

// getLogger retrieves the request-scoped logger or falls back to the service logger
func (s *Service) getLogger(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx, s.logger)
}

// Pipeline returns the pipeline shape snapshots are reconciled against
func (s *Service) Pipeline() reconcile.Pipeline {
	return s.opts.Pipeline
}

// GetSnapshot fetches a run and reconciles it into a snapshot
func (s *Service) GetSnapshot(ctx context.Context, id models.RunIdentity) (*models.RunSnapshot, error) {
	log := s.getLogger(ctx)

	if err := id.Validate(); err != nil {
		log.Debug("service: rejecting run identity", "run", id.String(), "error", err)
		return nil, err
	}

	report, err := s.backend.GetWorkflowResult(ctx, id)
	if err != nil {
		log.Debug("service: workflow result unavailable", "run", id.String(), "error", err)
		return nil, fmt.Errorf("get workflow result: %w", err)
	}

	snap := reconcile.Build(id, report, s.opts.Pipeline, s.opts.Now())

	log.Debug("service: snapshot built",
		"run", id.String(),
		"status", snap.RunStatus,
		"stages", len(snap.Stages),
		"duplicates", snap.Diagnostics.DuplicateCount,
		"synthesized", len(snap.Diagnostics.SynthesizedStages))

	return snap, nil
}

// ListRuns fetches recent runs and applies the query's filters
func (s *Service) ListRuns(ctx context.Context, q RunQuery) ([]models.RunSummary, error) {
	log := s.getLogger(ctx)

	limit := q.Limit
	if limit <= 0 {
		limit = s.opts.ListLimit
	}

	runs, err := s.backend.ListRuns(ctx, limit)
	if err != nil {
		log.Error("service: failed to list runs", "limit", limit, "error", err)
		return nil, fmt.Errorf("list runs: %w", err)
	}

	filtered := FilterRuns(runs, q.Search, q.Statuses)
	log.Debug("service: runs listed", "fetched", len(runs), "returned", len(filtered))
	return filtered, nil
}

// StageOutput returns a stage's record and the classification of its output
func (s *Service) StageOutput(ctx context.Context, id models.RunIdentity, stage string) (*StageOutput, error) {
	snap, err := s.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	st, ok := snap.Stage(stage)
	if !ok {
		s.getLogger(ctx).Debug("service: stage not found", "run", id.String(), "stage", stage)
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, stage)
	}

	return &StageOutput{
		Identity:       id,
		Stage:          st,
		Classification: output.Classify(st.Output),
	}, nil
}

// ExportStage renders a stage's output as a downloadable artifact
func (s *Service) ExportStage(ctx context.Context, id models.RunIdentity, stage, format string) (*output.Artifact, error) {
	log := s.getLogger(ctx)

	out, err := s.StageOutput(ctx, id, stage)
	if err != nil {
		return nil, err
	}
	if out.Classification.Kind == output.KindEmpty {
		return nil, fmt.Errorf("%w: %s", ErrNoOutput, stage)
	}

	artifact, err := output.Export(format, stage, out.Stage.Output)
	if err != nil {
		return nil, fmt.Errorf("export stage output: %w", err)
	}
	ext := format
	if ext == "" {
		ext = output.FormatJSON
	}
	artifact.Filename = output.Filename(ext, id.WorkflowID, id.RunID, stage)

	log.Info("service: stage output exported",
		"run", id.String(),
		"stage", stage,
		"format", ext,
		"bytes", len(artifact.Data))

	return artifact, nil
}

// TerminateRun asks the backend to stop a run
func (s *Service) TerminateRun(ctx context.Context, id models.RunIdentity, reason string) (*backend.Envelope, error) {
	log := s.getLogger(ctx)

	if err := id.Validate(); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "Terminated by user"
	}

	log.Info("service: terminating run", "run", id.String(), "reason", reason)

	env, err := s.backend.Terminate(ctx, id, reason)
	if err != nil {
		log.Error("service: terminate failed", "run", id.String(), "error", err)
		return nil, fmt.Errorf("terminate run: %w", err)
	}

	log.Info("service: run terminated", "run", id.String())
	return env, nil
}

// RetryStage re-runs one stage. An empty stage retries the terminal stage.
func (s *Service) RetryStage(ctx context.Context, id models.RunIdentity, stage string) (*RetryResult, error) {
	log := s.getLogger(ctx)

	if err := id.Validate(); err != nil {
		return nil, err
	}
	if stage == "" {
		stage = s.opts.Pipeline.TerminalStage
	}

	log.Info("service: retrying stage", "run", id.String(), "stage", stage)

	env, err := s.backend.RetryStage(ctx, id, stage)
	if err != nil {
		log.Error("service: retry failed", "run", id.String(), "stage", stage, "error", err)
		return nil, fmt.Errorf("retry stage: %w", err)
	}

	return &RetryResult{Stage: stage, Envelope: env}, nil
}

// ListAPIKeys passes the backend's credential listing through
func (s *Service) ListAPIKeys(ctx context.Context) (json.RawMessage, error) {
	return s.backend.ListAPIKeys(ctx)
}

// SetAPIKey stores a backend credential for a service
func (s *Service) SetAPIKey(ctx context.Context, service, key string) (json.RawMessage, error) {
	s.getLogger(ctx).Info("service: storing api key", "service", service)
	return s.backend.SetAPIKey(ctx, service, key)
}

// DeleteAPIKey removes a backend credential
func (s *Service) DeleteAPIKey(ctx context.Context, service string) error {
	s.getLogger(ctx).Info("service: deleting api key", "service", service)
	return s.backend.DeleteAPIKey(ctx, service)
}

// HealthCheck reports the gateway's own status and backend reachability
func (s *Service) HealthCheck(ctx context.Context) map[string]any {
	log := s.getLogger(ctx)

	health := map[string]any{
		"status":  "healthy",
		"service": "runwatch-gateway",
	}
	checks := map[string]any{
		"pipeline": map[string]any{
			"status":          "healthy",
			"terminal_stage":  s.opts.Pipeline.TerminalStage,
			"internal_stages": s.opts.Pipeline.InternalStages,
		},
	}
	health["checks"] = checks

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.backend.Ping(pingCtx); err != nil {
		log.Warn("service: backend health check failed", "error", err)
		checks["backend"] = map[string]any{
			"status": "unhealthy",
			"error":  backend.UserMessage(err),
		}
		health["status"] = "degraded"
	} else {
		checks["backend"] = map[string]any{"status": "healthy"}
	}

	log.Debug("service: health check completed", "status", health["status"])
	return health
}
