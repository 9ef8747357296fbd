package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/rudder-cd/rudder/domain"
)

// IssueKind classifies one registry consistency violation
type IssueKind string

const (
	IssuePortOutOfRange     IssueKind = "port_out_of_range"
	IssueDuplicatePort      IssueKind = "duplicate_port"
	IssueDuplicateDomain    IssueKind = "duplicate_domain"
	IssueOrphanedAllocation IssueKind = "orphaned_allocation"
	IssuePortFieldMismatch  IssueKind = "port_field_mismatch"
	IssueDoubleActiveSlot   IssueKind = "double_active_slot"
	IssueDanglingDomain     IssueKind = "dangling_domain"
)

// Issue is one finding of a registry validation pass
type Issue struct {
	Kind    IssueKind
	Subject string
	Message string
}

// Validate cross-checks every registry table and reports violations. The
// schema's unique indexes make duplicates unreachable through the API, but
// validation still covers them against hand-edited databases and restored
// backups.
func (s *Service) Validate(ctx context.Context) ([]Issue, error) {
	projects, err := s.store.Projects.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	environments, err := s.store.Environments.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load environments: %w", err)
	}
	allocations, err := s.store.Allocations.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	bindings, err := s.store.Domains.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load domain bindings: %w", err)
	}
	slots, err := s.store.Slots.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load slots: %w", err)
	}

	projectByID := make(map[uuid.UUID]*domain.Project, len(projects))
	for _, p := range projects {
		projectByID[p.ID] = p
	}
	envByID := make(map[uuid.UUID]*domain.Environment, len(environments))
	envByProjectAndName := make(map[string]*domain.Environment, len(environments))
	for _, e := range environments {
		envByID[e.ID] = e
		envByProjectAndName[envKey(e.ProjectID, e.Name)] = e
	}

	var issues []Issue

	portCount := make(map[int]int)
	for _, a := range allocations {
		portCount[a.Port]++

		block, err := RangeFor(a.Role, a.Class)
		if err != nil || !block.Contains(a.Port) {
			issues = append(issues, Issue{
				Kind:    IssuePortOutOfRange,
				Subject: fmt.Sprintf("port %d", a.Port),
				Message: fmt.Sprintf("port %d is allocated as %s/%s but lies outside the reserved range", a.Port, a.Role, a.Class),
			})
		}

		if _, ok := projectByID[a.ProjectID]; !ok {
			issues = append(issues, Issue{
				Kind:    IssueOrphanedAllocation,
				Subject: fmt.Sprintf("port %d", a.Port),
				Message: fmt.Sprintf("port %d references project %s which does not exist", a.Port, a.ProjectID),
			})
			continue
		}
		env, ok := envByID[a.EnvironmentID]
		if !ok {
			issues = append(issues, Issue{
				Kind:    IssueOrphanedAllocation,
				Subject: fmt.Sprintf("port %d", a.Port),
				Message: fmt.Sprintf("port %d references environment %s which does not exist", a.Port, a.EnvironmentID),
			})
			continue
		}
		if recorded := env.PortFor(a.Role); recorded != a.Port {
			issues = append(issues, Issue{
				Kind:    IssuePortFieldMismatch,
				Subject: fmt.Sprintf("port %d", a.Port),
				Message: fmt.Sprintf("allocation says %s/%s uses %s port %d but the environment row records %d", projectByID[a.ProjectID].Name, env.Name, a.Role, a.Port, recorded),
			})
		}
	}
	for port, count := range portCount {
		if count > 1 {
			issues = append(issues, Issue{
				Kind:    IssueDuplicatePort,
				Subject: fmt.Sprintf("port %d", port),
				Message: fmt.Sprintf("port %d is allocated %d times", port, count),
			})
		}
	}

	domainCount := make(map[string]int)
	for _, b := range bindings {
		domainCount[b.Domain]++
		if _, ok := envByProjectAndName[envKey(b.ProjectID, b.Environment)]; !ok {
			issues = append(issues, Issue{
				Kind:    IssueDanglingDomain,
				Subject: b.Domain,
				Message: fmt.Sprintf("domain %s is bound to environment %s of project %s which does not exist", b.Domain, b.Environment, b.ProjectID),
			})
		}
	}
	for name, count := range domainCount {
		if count > 1 {
			issues = append(issues, Issue{
				Kind:    IssueDuplicateDomain,
				Subject: name,
				Message: fmt.Sprintf("domain %s is bound %d times", name, count),
			})
		}
	}

	activeByEnv := make(map[uuid.UUID]int)
	for _, slot := range slots {
		if slot.IsActive {
			activeByEnv[slot.EnvironmentID]++
		}
	}
	for envID, count := range activeByEnv {
		if count > 1 {
			subject := envID.String()
			if env, ok := envByID[envID]; ok {
				if project, ok := projectByID[env.ProjectID]; ok {
					subject = fmt.Sprintf("%s/%s", project.Name, env.Name)
				}
			}
			issues = append(issues, Issue{
				Kind:    IssueDoubleActiveSlot,
				Subject: subject,
				Message: fmt.Sprintf("environment %s has %d active slots, expected at most one", subject, count),
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Kind != issues[j].Kind {
			return issues[i].Kind < issues[j].Kind
		}
		return issues[i].Subject < issues[j].Subject
	})
	return issues, nil
}
