// Package watcher runs the background maintenance loop. Each sweep expires
// stale confirmation tickets, closes emergency windows past their deadline,
// downgrades slot records the engine no longer backs and reports registry
// drift without touching the host. Host corrections stay behind the gated
// sync-registry operation.
package watcher

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/protection"
	"github.com/rudder-cd/rudder/registry"
	"github.com/rudder-cd/rudder/slot"
)

const (
	defaultPollInterval = time.Minute
	defaultCheckTimeout = 30 * time.Second

	// maxParallelChecks bounds concurrent per-project engine checks
	maxParallelChecks = 4

	// sweepActor names the loop in sync calls and change history
	sweepActor = "watcher"
)

type Service struct {
	registry     *registry.Service
	protection   *protection.Service
	slots        *slot.Manager
	syncer       *registry.Syncer
	bus          *events.Bus
	pollInterval time.Duration
	checkTimeout time.Duration
}

func NewService(
	reg *registry.Service,
	prot *protection.Service,
	slots *slot.Manager,
	syncer *registry.Syncer,
	bus *events.Bus,
	pollInterval time.Duration,
	checkTimeout time.Duration,
) *Service {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if checkTimeout <= 0 {
		checkTimeout = defaultCheckTimeout
	}
	return &Service{
		registry:     reg,
		protection:   prot,
		slots:        slots,
		syncer:       syncer,
		bus:          bus,
		pollInterval: pollInterval,
		checkTimeout: checkTimeout,
	}
}

// Start runs sweeps until the context is cancelled. The first sweep runs
// immediately, later ones on the poll interval.
func (s *Service) Start(ctx context.Context) error {
	slog.Info("Watcher starting",
		"poll_interval", s.pollInterval,
		"check_timeout", s.checkTimeout)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Watcher shutting down")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one maintenance pass. A failing stage is logged and the
// remaining stages still run.
func (s *Service) Sweep(ctx context.Context) {
	s.expireTickets(ctx)
	s.closeEmergencies(ctx)
	s.reconcileSlots(ctx)
	s.detectDrift(ctx)
}

func (s *Service) expireTickets(ctx context.Context) {
	if _, err := s.protection.ExpireStale(ctx); err != nil {
		slog.Error("Failed to expire stale tickets",
			"layer", "watcher",
			"operation", "expire_tickets",
			"error", err)
	}
}

func (s *Service) closeEmergencies(ctx context.Context) {
	if _, err := s.protection.CloseExpired(ctx); err != nil {
		slog.Error("Failed to close expired emergency windows",
			"layer", "watcher",
			"operation", "close_emergencies",
			"error", err)
	}
}

// reconcileSlots fans per-project checks out concurrently. Each check gets
// its own timeout so one slow host cannot stall the sweep.
func (s *Service) reconcileSlots(ctx context.Context) {
	active := domain.ProjectStatusActive
	projects, err := s.registry.ListProjects(ctx, &active)
	if err != nil {
		slog.Error("Failed to list projects for slot reconciliation",
			"layer", "watcher",
			"operation", "reconcile_slots",
			"error", err)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(maxParallelChecks)
	for _, project := range projects {
		g.Go(func() error {
			s.checkProject(ctx, project)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) checkProject(ctx context.Context, project *domain.Project) {
	environments, err := s.registry.ListEnvironments(ctx, project.ID)
	if err != nil {
		slog.Error("Failed to list environments",
			"layer", "watcher",
			"operation", "reconcile_slots",
			"project", project.Name,
			"error", err)
		return
	}

	for _, environment := range environments {
		checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
		_, err := s.slots.Reconcile(checkCtx, project.ID, environment.Name)
		cancel()
		if err != nil {
			slog.Error("Failed to reconcile slot records",
				"layer", "watcher",
				"operation", "reconcile_slots",
				"project", project.Name,
				"environment", environment.Name.String(),
				"error", err)
		}
	}
}

// detectDrift runs the registry sweep in dry-run mode and publishes every
// finding. Applying corrections is an operator decision, so the host is
// never touched here.
func (s *Service) detectDrift(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	changes, err := s.syncer.Sync(checkCtx, sweepActor, true)
	if err != nil {
		slog.Error("Drift detection failed",
			"layer", "watcher",
			"operation", "detect_drift",
			"error", err)
	}

	for _, change := range changes {
		s.bus.Publish(events.Event{
			Type:        events.RegistryDriftDetected,
			Project:     change.Project,
			Environment: change.Environment.String(),
			Operation:   string(change.Kind),
			Details:     change.Detail,
		})
	}
	if len(changes) > 0 {
		slog.Warn("Registry drift detected",
			"layer", "watcher",
			"operation", "detect_drift",
			"changes", len(changes))
	}
}
