package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gosimple/slug"

	"github.com/rudder-cd/rudder/docker"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/proxy"
)

// ChangeKind classifies one drift correction
type ChangeKind string

const (
	ChangeStartedContainer   ChangeKind = "started_container"
	ChangeStoppedUnknown     ChangeKind = "stopped_unknown_container"
	ChangeRewroteRoute       ChangeKind = "rewrote_route"
	ChangeClearedContainerID ChangeKind = "cleared_container_id"
	ChangeLabelMismatch      ChangeKind = "label_mismatch"
)

// Change is one piece of drift between the registry and the live host.
// Applied is false in dry runs, for report-only kinds (label mismatches
// need a redeploy), and when applying the correction failed.
type Change struct {
	Kind        ChangeKind
	Project     string
	Environment domain.EnvironmentClass
	Subject     string
	Detail      string
	Applied     bool
}

// SyncRuntime is the container-engine surface the drift sweep needs
type SyncRuntime interface {
	ListContainers(ctx context.Context, host, prefix string) ([]docker.ContainerSummary, error)
	StartContainer(ctx context.Context, host, name string) error
	StopContainer(ctx context.Context, host, name string) error
}

// Syncer reconciles registry records against live host state. The registry
// is authoritative: the host is corrected to match it, never the other way
// around.
type Syncer struct {
	service *Service
	runtime SyncRuntime
	router  proxy.Router
	bus     *events.Bus
	host    string
}

func NewSyncer(service *Service, runtime SyncRuntime, router proxy.Router, bus *events.Bus, host string) *Syncer {
	return &Syncer{
		service: service,
		runtime: runtime,
		router:  router,
		bus:     bus,
		host:    host,
	}
}

// Sync sweeps every active project's environments for drift. In dry-run
// mode it only reports; otherwise each correction is applied, appended to
// the change history and published as registry.drift_detected. A correction
// that fails to apply is reported with Applied false and the sweep
// continues.
func (s *Syncer) Sync(ctx context.Context, actor string, dryRun bool) ([]Change, error) {
	active := domain.ProjectStatusActive
	projects, err := s.service.ListProjects(ctx, &active)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, project := range projects {
		environments, err := s.service.ListEnvironments(ctx, project.ID)
		if err != nil {
			return changes, err
		}
		for _, environment := range environments {
			envChanges, err := s.syncEnvironment(ctx, dryRun, project, environment)
			if err != nil {
				return changes, fmt.Errorf("failed to sync %s/%s: %w", project.Name, environment.Name, err)
			}
			changes = append(changes, envChanges...)
		}
	}

	if !dryRun {
		for _, change := range changes {
			if change.Applied {
				s.recordDrift(ctx, actor, change)
			}
		}
	}
	return changes, nil
}

func (s *Syncer) syncEnvironment(ctx context.Context, dryRun bool, project *domain.Project, environment *domain.Environment) ([]Change, error) {
	if !dryRun {
		unlock := s.service.LockEnvironment(project.ID, environment.Name)
		defer unlock()
	}

	prefix := domain.ResourcePrefix(project.Name, environment.Name) + "-"
	live, err := s.runtime.ListContainers(ctx, s.host, prefix)
	if err != nil {
		return nil, err
	}
	liveByName := make(map[string]docker.ContainerSummary, len(live))
	for _, c := range live {
		liveByName[c.Name] = c
	}

	slots, err := s.service.store.Slots.ListByEnvironmentID(environment.ID)
	if err != nil {
		return nil, err
	}
	slotByContainerName := make(map[string]*domain.Slot, len(slots))
	for _, slot := range slots {
		slotByContainerName[domain.AppContainerName(project.Name, environment.Name, slot.Name)] = slot
	}

	infraNames := map[string]bool{
		domain.DBContainerName(project.Name, environment.Name):    true,
		domain.CacheContainerName(project.Name, environment.Name): true,
	}

	var changes []Change
	for _, container := range live {
		slot, isSlot := slotByContainerName[container.Name]

		switch {
		case isSlot && slot.ContainerID != nil:
			if slot.Status == domain.SlotStatusHealthy && container.State != "running" {
				changes = append(changes, s.startContainer(ctx, dryRun, project, environment, container.Name,
					fmt.Sprintf("slot %s is recorded healthy but its container is %s", slot.Name, container.State)))
			}
			changes = append(changes, s.checkLabels(project, environment, container)...)
		case isSlot:
			// A container with our slot name that the registry never
			// recorded is not ours to keep running
			changes = append(changes, s.stopContainer(ctx, dryRun, project, environment, container.Name,
				"registry has no record of this container"))
		case infraNames[container.Name]:
			if container.State != "running" {
				changes = append(changes, s.startContainer(ctx, dryRun, project, environment, container.Name,
					fmt.Sprintf("service container is %s", container.State)))
			}
			changes = append(changes, s.checkLabels(project, environment, container)...)
		default:
			changes = append(changes, s.stopContainer(ctx, dryRun, project, environment, container.Name,
				"container carries this environment's name prefix but the registry does not know it"))
		}
	}

	// Slots whose recorded container vanished from the host
	for name, slot := range slotByContainerName {
		if slot.ContainerID == nil {
			continue
		}
		if _, found := liveByName[name]; found {
			continue
		}
		change := Change{
			Kind:        ChangeClearedContainerID,
			Project:     project.Name,
			Environment: environment.Name,
			Subject:     name,
			Detail:      fmt.Sprintf("slot %s records container %s which no longer exists; marking slot failed", slot.Name, slot.ContainerIDStr()),
		}
		if !dryRun {
			slot.ContainerID = nil
			slot.Status = domain.SlotStatusFailed
			if err := s.service.store.Slots.Update(slot); err != nil {
				change.Detail = fmt.Sprintf("%s (update failed: %s)", change.Detail, err)
			} else {
				change.Applied = true
			}
		}
		changes = append(changes, change)
	}

	routeChange := s.checkRoute(ctx, dryRun, project, environment, slots)
	if routeChange != nil {
		changes = append(changes, *routeChange)
	}
	return changes, nil
}

func (s *Syncer) startContainer(ctx context.Context, dryRun bool, project *domain.Project, environment *domain.Environment, name, detail string) Change {
	change := Change{
		Kind:        ChangeStartedContainer,
		Project:     project.Name,
		Environment: environment.Name,
		Subject:     name,
		Detail:      detail,
	}
	if dryRun {
		return change
	}
	if err := s.runtime.StartContainer(ctx, s.host, name); err != nil {
		slog.Error("Drift correction failed",
			"layer", "registry",
			"operation", "sync",
			"container", name,
			"error", err)
		change.Detail = fmt.Sprintf("%s (start failed: %s)", detail, err)
		return change
	}
	change.Applied = true
	return change
}

func (s *Syncer) stopContainer(ctx context.Context, dryRun bool, project *domain.Project, environment *domain.Environment, name, detail string) Change {
	change := Change{
		Kind:        ChangeStoppedUnknown,
		Project:     project.Name,
		Environment: environment.Name,
		Subject:     name,
		Detail:      detail,
	}
	if dryRun {
		return change
	}
	if err := s.runtime.StopContainer(ctx, s.host, name); err != nil {
		slog.Error("Drift correction failed",
			"layer", "registry",
			"operation", "sync",
			"container", name,
			"error", err)
		change.Detail = fmt.Sprintf("%s (stop failed: %s)", detail, err)
		return change
	}
	change.Applied = true
	return change
}

// checkLabels reports containers whose ownership labels disagree with the
// registry. Labels cannot be changed on a live container, so the remedy is
// a redeploy and the change is never marked applied.
func (s *Syncer) checkLabels(project *domain.Project, environment *domain.Environment, container docker.ContainerSummary) []Change {
	wantProject := slug.Make(project.Name)
	wantEnv := environment.Name.String()

	var changes []Change
	if got := container.Labels["rudder.project"]; got != wantProject {
		changes = append(changes, Change{
			Kind:        ChangeLabelMismatch,
			Project:     project.Name,
			Environment: environment.Name,
			Subject:     container.Name,
			Detail:      fmt.Sprintf("label rudder.project is %q, registry expects %q; redeploy to relabel", got, wantProject),
		})
	}
	if got := container.Labels["rudder.environment"]; got != wantEnv {
		changes = append(changes, Change{
			Kind:        ChangeLabelMismatch,
			Project:     project.Name,
			Environment: environment.Name,
			Subject:     container.Name,
			Detail:      fmt.Sprintf("label rudder.environment is %q, registry expects %q; redeploy to relabel", got, wantEnv),
		})
	}
	return changes
}

// checkRoute verifies the proxy sends the environment's domain to its
// active slot
func (s *Syncer) checkRoute(ctx context.Context, dryRun bool, project *domain.Project, environment *domain.Environment, slots []*domain.Slot) *Change {
	if environment.Domain == nil {
		return nil
	}
	var activeSlot *domain.Slot
	for _, slot := range slots {
		if slot.IsActive {
			activeSlot = slot
			break
		}
	}
	if activeSlot == nil || activeSlot.ContainerID == nil {
		return nil
	}

	domainName := *environment.Domain
	expected := SlotRouteTarget(project.Name, environment, activeSlot.Name)

	current, err := s.router.Route(ctx, domainName)
	if err == nil && current.Target == expected {
		return nil
	}

	detail := fmt.Sprintf("route should point at slot %s (%s)", activeSlot.Name, expected)
	if err == nil {
		detail = fmt.Sprintf("route points at %s, registry expects slot %s (%s)", current.Target, activeSlot.Name, expected)
	}
	change := &Change{
		Kind:        ChangeRewroteRoute,
		Project:     project.Name,
		Environment: environment.Name,
		Subject:     domainName,
		Detail:      detail,
	}
	if dryRun {
		return change
	}
	err = s.router.SetRoute(ctx, proxy.Route{
		Domain:      domainName,
		Target:      expected,
		Project:     project.Name,
		Environment: environment.Name.String(),
	})
	if err != nil {
		slog.Error("Drift correction failed",
			"layer", "registry",
			"operation", "sync",
			"domain", domainName,
			"error", err)
		change.Detail = fmt.Sprintf("%s (route update failed: %s)", detail, err)
		return change
	}
	change.Applied = true
	return change
}

func (s *Syncer) recordDrift(ctx context.Context, actor string, change Change) {
	entry := domain.NewChangeHistoryEntry(actor, domain.OpRegistrySync)
	env := change.Environment
	entry.Environment = &env
	entry.Details = fmt.Sprintf("%s: %s (%s)", change.Kind, change.Subject, change.Detail)
	if project, err := s.service.FindProjectByName(ctx, change.Project); err == nil {
		entry.ProjectID = &project.ID
	}
	if err := s.service.RecordChange(ctx, entry); err != nil {
		slog.Error("Failed to record drift correction",
			"layer", "registry",
			"operation", "sync",
			"error", err)
	}

	s.bus.Publish(events.Event{
		Type:        events.RegistryDriftDetected,
		Project:     change.Project,
		Environment: change.Environment.String(),
		Operation:   string(change.Kind),
		Details:     change.Detail,
	})
}

// SlotRouteTarget is the proxy target for one slot: the slot container's
// DNS name on the project network, on the environment's allocated app port
func SlotRouteTarget(projectName string, environment *domain.Environment, slot domain.SlotName) string {
	return fmt.Sprintf("http://%s:%d", domain.AppContainerName(projectName, environment.Name, slot), environment.AppPort)
}
