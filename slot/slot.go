// Package slot manages the blue/green release slots of an environment:
// which slot receives the next deploy, which one serves traffic, and the
// promote/rollback flips between them.
//
// A deploy always lands on the inactive slot, so the serving release is
// untouched while the new one builds. Promotion is the only transition that
// changes which slot is active; it updates the proxy route first and then
// swaps the records atomically with a history entry.
package slot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rudder-cd/rudder/docker"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/protection"
	"github.com/rudder-cd/rudder/proxy"
	"github.com/rudder-cd/rudder/registry"
	"github.com/rudder-cd/rudder/repository"
)

// ContainerInspector is the runtime surface traffic flips need for their
// live health check
type ContainerInspector interface {
	InspectContainer(ctx context.Context, host, name string) (*docker.ContainerState, error)
}

type Manager struct {
	store      *repository.Store
	registry   *registry.Service
	protection *protection.Service
	router     proxy.Router
	runtime    ContainerInspector
	bus        *events.Bus
	host       string
}

func NewManager(store *repository.Store, reg *registry.Service, prot *protection.Service, router proxy.Router, runtime ContainerInspector, bus *events.Bus, host string) *Manager {
	return &Manager{
		store:      store,
		registry:   reg,
		protection: prot,
		router:     router,
		runtime:    runtime,
		bus:        bus,
		host:       host,
	}
}

// SlotView pairs a slot record with the live state of its container, when
// one exists.
type SlotView struct {
	Record *domain.Slot
	Live   *docker.ContainerState
}

// BeginDeploy picks the slot the next release lands on and marks it
// deploying. The active slot is never selected. With no active slot the
// target is the one that does not hold a promotable release, so a healthy
// but unpromoted candidate survives a redeploy. The caller holds the
// environment lock.
func (m *Manager) BeginDeploy(ctx context.Context, environmentID uuid.UUID, image string) (*domain.Slot, error) {
	if image == "" {
		return nil, domain.NewValidationError("image is required")
	}

	slots, err := m.store.Slots.ListByEnvironmentID(environmentID)
	if err != nil {
		return nil, err
	}

	name := targetSlotName(slots)
	target := findSlot(slots, name)
	if target == nil {
		fresh := domain.NewSlot(environmentID, name)
		target, err = m.store.Slots.Create(&fresh)
		if err != nil {
			return nil, fmt.Errorf("failed to create slot record: %w", err)
		}
	}

	target.Image = image
	target.Status = domain.SlotStatusDeploying
	if err := m.store.Slots.Update(target); err != nil {
		return nil, fmt.Errorf("failed to mark slot deploying: %w", err)
	}

	slog.Info("slot selected for deploy",
		"layer", "slot",
		"environment_id", environmentID.String(),
		"slot", target.Name.String(),
		"image", image)
	return target, nil
}

// CompleteDeploy records the started container and marks the slot healthy
func (m *Manager) CompleteDeploy(ctx context.Context, slotID uuid.UUID, containerID string) (*domain.Slot, error) {
	record, err := m.getSlot(slotID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record.Status = domain.SlotStatusHealthy
	record.ContainerID = &containerID
	record.DeployedAt = &now
	if err := m.store.Slots.Update(record); err != nil {
		return nil, fmt.Errorf("failed to mark slot healthy: %w", err)
	}
	return record, nil
}

// FailDeploy marks the slot failed. The previous container of this slot was
// already replaced by the pipeline, so the recorded id is cleared.
func (m *Manager) FailDeploy(ctx context.Context, slotID uuid.UUID) error {
	record, err := m.getSlot(slotID)
	if err != nil {
		return err
	}

	record.Status = domain.SlotStatusFailed
	record.ContainerID = nil
	if err := m.store.Slots.Update(record); err != nil {
		return fmt.Errorf("failed to mark slot failed: %w", err)
	}
	return nil
}

// Promote switches the environment's traffic to the given slot, or to the
// most recently deployed promotable inactive slot when none is named. The
// slot must be healthy on record and its container ready on the host.
func (m *Manager) Promote(ctx context.Context, actor string, projectID uuid.UUID, env domain.EnvironmentClass, slotName *domain.SlotName, ticketID *uuid.UUID) (*domain.Slot, error) {
	project, environment, err := m.resolve(ctx, projectID, env)
	if err != nil {
		return nil, err
	}

	err = m.protection.Require(ctx, protection.Request{
		Operation: domain.OpPromote,
		Target:    domain.OperationTarget(project.Name, env),
		ProjectID: &projectID,
		Actor:     actor,
		TicketID:  ticketID,
	})
	if err != nil {
		return nil, err
	}

	unlock := m.registry.LockEnvironment(projectID, env)
	defer unlock()

	slots, err := m.store.Slots.ListByEnvironmentID(environment.ID)
	if err != nil {
		return nil, err
	}
	active := activeSlot(slots)

	var candidate *domain.Slot
	if slotName != nil {
		candidate = findSlot(slots, *slotName)
		if candidate == nil {
			return nil, fmt.Errorf("slot %s of %s/%s: %w", *slotName, project.Name, env, domain.ErrNotFound)
		}
	} else {
		candidate = latestPromotable(slots)
		if candidate == nil {
			return nil, domain.NewValidationError("no promotable slot in %s/%s; deploy first", project.Name, env)
		}
	}

	if active != nil && active.ID == candidate.ID {
		return nil, domain.NewValidationError("slot %s is already active", candidate.Name)
	}
	if !candidate.Promotable() {
		return nil, domain.NewValidationError("slot %s is %s, not healthy", candidate.Name, candidate.Status)
	}
	if err := m.checkLive(ctx, project, env, candidate); err != nil {
		return nil, err
	}

	if err := m.flip(ctx, actor, domain.OpPromote, project, environment, active, candidate); err != nil {
		return nil, err
	}
	m.settleTicket(ctx, ticketID)

	slog.Info("slot promoted",
		"layer", "slot",
		"project", project.Name,
		"environment", env.String(),
		"slot", candidate.Name.String())
	m.publish(events.SlotPromoted, project.Name, env, domain.OpPromote,
		fmt.Sprintf("slot %s now active", candidate.Name))
	return candidate, nil
}

// Rollback promotes whichever slot is currently inactive, swapping traffic
// back to the previous release. Valid only while that slot still holds its
// previously healthy container.
func (m *Manager) Rollback(ctx context.Context, actor string, projectID uuid.UUID, env domain.EnvironmentClass, ticketID *uuid.UUID) (*domain.Slot, error) {
	project, environment, err := m.resolve(ctx, projectID, env)
	if err != nil {
		return nil, err
	}

	err = m.protection.Require(ctx, protection.Request{
		Operation: domain.OpRollback,
		Target:    domain.OperationTarget(project.Name, env),
		ProjectID: &projectID,
		Actor:     actor,
		TicketID:  ticketID,
	})
	if err != nil {
		return nil, err
	}

	unlock := m.registry.LockEnvironment(projectID, env)
	defer unlock()

	slots, err := m.store.Slots.ListByEnvironmentID(environment.ID)
	if err != nil {
		return nil, err
	}
	active := activeSlot(slots)
	if active == nil {
		return nil, fmt.Errorf("%s/%s has no active slot: %w", project.Name, env, domain.ErrNoPriorSlot)
	}

	prior := findSlot(slots, active.Name.Other())
	if prior == nil || !prior.Promotable() {
		return nil, fmt.Errorf("slot %s of %s/%s holds no healthy release: %w",
			active.Name.Other(), project.Name, env, domain.ErrNoPriorSlot)
	}
	if err := m.checkLive(ctx, project, env, prior); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrNoPriorSlot)
	}

	if err := m.flip(ctx, actor, domain.OpRollback, project, environment, active, prior); err != nil {
		return nil, err
	}
	m.settleTicket(ctx, ticketID)

	slog.Info("slot rolled back",
		"layer", "slot",
		"project", project.Name,
		"environment", env.String(),
		"slot", prior.Name.String())
	m.publish(events.SlotRolledBack, project.Name, env, domain.OpRollback,
		fmt.Sprintf("traffic back on slot %s", prior.Name))
	return prior, nil
}

// Status reports the environment's slots with the live container state
// folded in. A missing container leaves Live nil.
func (m *Manager) Status(ctx context.Context, projectID uuid.UUID, env domain.EnvironmentClass) ([]SlotView, error) {
	project, environment, err := m.resolve(ctx, projectID, env)
	if err != nil {
		return nil, err
	}

	slots, err := m.store.Slots.ListByEnvironmentID(environment.ID)
	if err != nil {
		return nil, err
	}

	views := make([]SlotView, 0, len(slots))
	for _, record := range slots {
		view := SlotView{Record: record}
		name := domain.AppContainerName(project.Name, env, record.Name)
		state, err := m.runtime.InspectContainer(ctx, m.host, name)
		if err == nil {
			view.Live = state
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Adjustment is one record correction made by Reconcile
type Adjustment struct {
	Slot   domain.SlotName
	Detail string
}

// Reconcile downgrades slot records the engine no longer backs. A healthy
// record whose container vanished is marked failed with the recorded id
// cleared; one whose container is present but not ready is marked failed
// and keeps the id so the remains can be inspected. Records are never
// upgraded here: only a deploy marks a slot healthy.
func (m *Manager) Reconcile(ctx context.Context, projectID uuid.UUID, env domain.EnvironmentClass) ([]Adjustment, error) {
	project, environment, err := m.resolve(ctx, projectID, env)
	if err != nil {
		return nil, err
	}

	unlock := m.registry.LockEnvironment(projectID, env)
	defer unlock()

	slots, err := m.store.Slots.ListByEnvironmentID(environment.ID)
	if err != nil {
		return nil, err
	}

	var adjustments []Adjustment
	for _, record := range slots {
		if record.Status != domain.SlotStatusHealthy {
			continue
		}

		name := domain.AppContainerName(project.Name, env, record.Name)
		state, err := m.runtime.InspectContainer(ctx, m.host, name)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			record.ContainerID = nil
		case err != nil:
			return adjustments, err
		case state.Ready():
			continue
		}

		detail := "container missing"
		if state != nil {
			detail = state.Status
			if state.Health != "" {
				detail = fmt.Sprintf("%s, health %s", state.Status, state.Health)
			}
		}

		record.Status = domain.SlotStatusFailed
		if err := m.store.Slots.Update(record); err != nil {
			return adjustments, fmt.Errorf("failed to downgrade slot %s: %w", record.Name, err)
		}
		slog.Warn("slot record downgraded",
			"layer", "slot",
			"project", project.Name,
			"environment", env.String(),
			"slot", record.Name.String(),
			"detail", detail)
		adjustments = append(adjustments, Adjustment{Slot: record.Name, Detail: detail})
	}
	return adjustments, nil
}

// ActiveSlot returns the environment's active slot, or ErrNotFound
func (m *Manager) ActiveSlot(ctx context.Context, environmentID uuid.UUID) (*domain.Slot, error) {
	record, err := m.store.Slots.FindActive(environmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no active slot: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return record, nil
}

func (m *Manager) resolve(ctx context.Context, projectID uuid.UUID, env domain.EnvironmentClass) (*domain.Project, *domain.Environment, error) {
	project, err := m.registry.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	environment, err := m.registry.GetEnvironment(ctx, projectID, env)
	if err != nil {
		return nil, nil, err
	}
	return project, environment, nil
}

func (m *Manager) getSlot(slotID uuid.UUID) (*domain.Slot, error) {
	record, err := m.store.Slots.FindByID(slotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("slot %s: %w", slotID, domain.ErrNotFound)
		}
		return nil, err
	}
	return record, nil
}

// checkLive verifies the record against the engine: the slot's container
// must exist and be ready before it can take traffic.
func (m *Manager) checkLive(ctx context.Context, project *domain.Project, env domain.EnvironmentClass, record *domain.Slot) error {
	name := domain.AppContainerName(project.Name, env, record.Name)
	state, err := m.runtime.InspectContainer(ctx, m.host, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError("slot %s has no container on the host", record.Name)
		}
		return err
	}
	if !state.Ready() {
		detail := state.Status
		if state.Health != "" {
			detail = fmt.Sprintf("%s, health %s", state.Status, state.Health)
		}
		return domain.NewValidationError("slot %s container is %s, not ready", record.Name, detail)
	}
	return nil
}

// flip makes candidate the active slot: proxy route first, then the record
// swap and its history entry in one transaction. A failed record swap after
// a route write is healed by the next registry sync, which rewrites routes
// from the recorded active slot.
func (m *Manager) flip(ctx context.Context, actor string, op domain.OperationKind, project *domain.Project, environment *domain.Environment, active, candidate *domain.Slot) error {
	if environment.Domain != nil {
		route := proxy.Route{
			Domain:      environment.DomainStr(),
			Target:      registry.SlotRouteTarget(project.Name, environment, candidate.Name),
			Project:     project.Name,
			Environment: environment.Name.String(),
		}
		if err := m.router.SetRoute(ctx, route); err != nil {
			return fmt.Errorf("failed to update proxy route: %w", err)
		}
	}

	err := m.store.Transaction(func(tx *repository.Store) error {
		if active != nil {
			active.IsActive = false
			if err := tx.Slots.Update(active); err != nil {
				return err
			}
		}
		candidate.IsActive = true
		if err := tx.Slots.Update(candidate); err != nil {
			return err
		}

		envName := environment.Name
		entry := domain.NewChangeHistoryEntry(actor, op)
		entry.ProjectID = &project.ID
		entry.Environment = &envName
		entry.Details = fmt.Sprintf("slot %s now active for %s/%s", candidate.Name, project.Name, environment.Name)
		return tx.History.Create(&entry)
	})
	if err != nil {
		return fmt.Errorf("failed to switch active slot: %w", err)
	}
	return nil
}

// settleTicket consumes the confirmation ticket backing an executed flip.
// Failure to consume is logged, not returned: the flip already happened.
func (m *Manager) settleTicket(ctx context.Context, ticketID *uuid.UUID) {
	if ticketID == nil {
		return
	}
	if err := m.protection.Consume(ctx, *ticketID); err != nil {
		slog.Error("Failed to consume confirmation ticket",
			"layer", "slot",
			"ticket_id", ticketID.String(),
			"error", err)
	}
}

func (m *Manager) publish(eventType events.Type, projectName string, env domain.EnvironmentClass, op domain.OperationKind, details string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{
		Type:        eventType,
		Project:     projectName,
		Environment: env.String(),
		Operation:   op.String(),
		Details:     details,
	})
}

// targetSlotName picks where the next release lands: the active slot's
// counterpart, or with nothing active the slot that does not hold the only
// promotable release. First deploys land on blue.
func targetSlotName(slots []*domain.Slot) domain.SlotName {
	if active := activeSlot(slots); active != nil {
		return active.Name.Other()
	}
	if candidate := latestPromotable(slots); candidate != nil {
		return candidate.Name.Other()
	}
	return domain.SlotBlue
}

// latestPromotable returns the most recently deployed inactive slot holding
// a healthy container, nil when there is none.
func latestPromotable(slots []*domain.Slot) *domain.Slot {
	var best *domain.Slot
	for _, s := range slots {
		if s.IsActive || !s.Promotable() {
			continue
		}
		if best == nil || deployedAfter(s, best) {
			best = s
		}
	}
	return best
}

func deployedAfter(a, b *domain.Slot) bool {
	if a.DeployedAt == nil {
		return false
	}
	if b.DeployedAt == nil {
		return true
	}
	return a.DeployedAt.After(*b.DeployedAt)
}

func findSlot(slots []*domain.Slot, name domain.SlotName) *domain.Slot {
	for _, s := range slots {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func activeSlot(slots []*domain.Slot) *domain.Slot {
	for _, s := range slots {
		if s.IsActive {
			return s
		}
	}
	return nil
}
