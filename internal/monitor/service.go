// Package monitor closes provisioning runs that lost their executing
// process, so that no request stays PROVISIONING forever.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/store"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

const (
	orphanMessage = "interrupted by provider restart"
	staleMessage  = "run abandoned: no progress within %s"
)

// RunOwner is the part of the orchestrator the watchdog needs.
type RunOwner interface {
	IsActive(runID uuid.UUID) bool
	FailOrphan(ctx context.Context, runID uuid.UUID, message string) error
}

// MonitorConfig contains configuration for the run watchdog
type MonitorConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

// Service periodically sweeps PENDING and RUNNING runs
type Service struct {
	runs       store.ProvisioningRun
	owner      RunOwner
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.SugaredLogger
}

// NewMonitorService creates a new run watchdog
func NewMonitorService(runs store.ProvisioningRun, owner RunOwner, config MonitorConfig) *Service {
	return &Service{
		runs:       runs,
		owner:      owner,
		interval:   config.Interval,
		staleAfter: config.StaleAfter,
		now:        time.Now,
		logger:     zap.S().Named("monitor"),
	}
}

// Run recovers runs left over by a previous process, then sweeps on every
// interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Infow("starting run watchdog", "interval", s.interval, "stale-after", s.staleAfter)

	if _, err := s.Sweep(ctx, true); err != nil {
		return fmt.Errorf("recovering interrupted runs: %w", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping run watchdog")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx, false); err != nil {
				s.logger.Errorw("run sweep failed", "error", err)
			}
		}
	}
}

// Sweep closes every unowned run that is orphaned or stale and returns how
// many it closed.
func (s *Service) Sweep(ctx context.Context, startup bool) (int, error) {
	runs, err := s.runs.ListByStatus(ctx, model.RunPending, model.RunRunning)
	if err != nil {
		return 0, err
	}

	now := s.now()
	closed := 0
	for i := range runs {
		run := &runs[i]
		health := Classify(run, now, s.staleAfter, s.owner.IsActive(run.ID), startup)

		var message string
		switch health {
		case RunOrphaned:
			message = orphanMessage
		case RunStale:
			message = fmt.Sprintf(staleMessage, s.staleAfter)
		default:
			continue
		}

		if err := s.owner.FailOrphan(ctx, run.ID, message); err != nil {
			s.logger.Warnw("failed to close run", "run-id", run.ID, "health", health, "error", err)
			continue
		}
		s.logger.Infow("closed run", "run-id", run.ID, "request-id", run.RequestID, "health", health)
		closed++
	}
	return closed, nil
}
