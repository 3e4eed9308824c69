package service

import (
	"context"

	"github.com/lei/runwatch/internal/models"
	"github.com/lei/runwatch/internal/poller"
)

// NewDetailPoller returns an idle controller that keeps one run's snapshot
// fresh until the run leaves RUNNING/STARTED or a fetch fails.
func (s *Service) NewDetailPoller(id models.RunIdentity, onResult func(poller.Result[*models.RunSnapshot])) *poller.Controller[*models.RunSnapshot] {
	return poller.New(poller.Config[*models.RunSnapshot]{
		Interval: s.opts.DetailInterval,
		Fetch: func(ctx context.Context) (*models.RunSnapshot, error) {
			return s.GetSnapshot(ctx, id)
		},
		Active: func(snap *models.RunSnapshot) bool {
			return snap != nil && snap.RunStatus.Active()
		},
		OnResult: onResult,
		Logger:   s.logger.With("run", id.String()),
		Name:     "detail",
	})
}

// NewListPoller returns an idle controller refreshing the run list. The list
// has no terminal state, so it polls until stopped or a fetch fails.
func (s *Service) NewListPoller(q RunQuery, onResult func(poller.Result[[]models.RunSummary])) *poller.Controller[[]models.RunSummary] {
	interval := s.opts.ListInterval
	if interval <= 0 {
		interval = poller.ListInterval
	}
	return poller.New(poller.Config[[]models.RunSummary]{
		Interval: interval,
		Fetch: func(ctx context.Context) ([]models.RunSummary, error) {
			return s.ListRuns(ctx, q)
		},
		OnResult: onResult,
		Logger:   s.logger,
		Name:     "list",
	})
}
