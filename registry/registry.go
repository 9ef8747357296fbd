// Package registry is the single source of truth for projects,
// environments, port allocations, domain bindings and slots. Every mutation
// runs inside one transaction together with exactly one change-history
// entry, serialized per (project, environment) by a keyed mutex.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/repository"
)

// ProjectConfig carries the caller-supplied fields for a new project
type ProjectConfig struct {
	Name    string
	Type    domain.ProjectType
	GitRepo string
}

// Service owns all registry state transitions
type Service struct {
	store *repository.Store
	locks *KeyedMutex
}

func NewService(store *repository.Store) *Service {
	return &Service{
		store: store,
		locks: NewKeyedMutex(),
	}
}

// LockEnvironment takes the per-(project, environment) mutex used to
// serialize deploy, promote, rollback and allocation on the same
// environment. Callers block until the holder releases.
func (s *Service) LockEnvironment(projectID uuid.UUID, env domain.EnvironmentClass) func() {
	return s.locks.Lock(envKey(projectID, env))
}

// RegisterProject creates a project in active status
func (s *Service) RegisterProject(ctx context.Context, actor string, config ProjectConfig) (*domain.Project, error) {
	name := strings.TrimSpace(config.Name)
	if name == "" {
		return nil, domain.NewValidationError("project name cannot be empty")
	}
	if !config.Type.IsValid() {
		return nil, domain.NewValidationError("invalid project type: %q", string(config.Type))
	}

	var gitRepo *string
	if config.GitRepo != "" {
		gitRepo = &config.GitRepo
	}
	project := domain.NewProject(name, config.Type, gitRepo)

	var created *domain.Project
	err := s.store.Transaction(func(tx *repository.Store) error {
		var err error
		created, err = tx.Projects.Create(&project)
		if err != nil {
			return err
		}
		entry := historyEntry(actor, domain.OpProjectRegister, &created.ID, nil,
			fmt.Sprintf("registered project %s (%s)", name, config.Type))
		entry.After = snapshotJSON(created)
		return tx.History.Create(&entry)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{
				Resource: "project",
				Value:    name,
				Reason:   fmt.Sprintf("a project named %s is already registered", name),
			}
		}
		return nil, fmt.Errorf("failed to register project %s: %w", name, err)
	}

	slog.Info("Project registered",
		"layer", "registry",
		"operation", "project_register",
		"project", created.Name,
		"project_id", created.ID)
	return created, nil
}

// GetProject retrieves a project by ID
func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	project, err := s.store.Projects.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	return project, nil
}

// FindProjectByName retrieves a project by its unique name
func (s *Service) FindProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	project, err := s.store.Projects.FindByName(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find project %s: %w", name, err)
	}
	return project, nil
}

// ListProjects returns all projects, or only those matching the status
// filter when one is given
func (s *Service) ListProjects(ctx context.Context, statusFilter *domain.ProjectStatus) ([]*domain.Project, error) {
	if statusFilter != nil {
		return s.store.Projects.ListByStatus(*statusFilter)
	}
	return s.store.Projects.List()
}

// ArchiveProject moves a project to archived status. Archiving an archived
// project is a no-op.
func (s *Service) ArchiveProject(ctx context.Context, actor string, id uuid.UUID) (*domain.Project, error) {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.Status == domain.ProjectStatusArchived {
		return project, nil
	}
	if project.Status == domain.ProjectStatusDeleted {
		return nil, domain.NewValidationError("project %s is deleted and cannot be archived", project.Name)
	}

	before := snapshotJSON(project)
	err = s.store.Transaction(func(tx *repository.Store) error {
		project.Status = domain.ProjectStatusArchived
		if err := tx.Projects.Update(project); err != nil {
			return err
		}
		entry := historyEntry(actor, domain.OpProjectArchive, &project.ID, nil,
			fmt.Sprintf("archived project %s", project.Name))
		entry.Before = before
		entry.After = snapshotJSON(project)
		return tx.History.Create(&entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive project %s: %w", project.Name, err)
	}
	return project, nil
}

// DeleteProject soft-deletes a project and releases everything it held:
// environments, their port allocations and slots, and its domain bindings.
// The project row stays for history attribution.
func (s *Service) DeleteProject(ctx context.Context, actor string, id uuid.UUID) error {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if project.Status == domain.ProjectStatusDeleted {
		return nil
	}

	before := snapshotJSON(project)
	err = s.store.Transaction(func(tx *repository.Store) error {
		environments, err := tx.Environments.ListByProjectID(id)
		if err != nil {
			return err
		}
		for _, environment := range environments {
			if err := tx.Allocations.DeleteByEnvironmentID(environment.ID); err != nil {
				return err
			}
			if err := tx.Environments.Delete(environment.ID); err != nil {
				return err
			}
		}
		if err := tx.Domains.DeleteByProjectID(id); err != nil {
			return err
		}

		project.Status = domain.ProjectStatusDeleted
		if err := tx.Projects.Update(project); err != nil {
			return err
		}
		entry := historyEntry(actor, domain.OpProjectDelete, &project.ID, nil,
			fmt.Sprintf("deleted project %s and released its ports and domains", project.Name))
		entry.Before = before
		return tx.History.Create(&entry)
	})
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", project.Name, err)
	}

	slog.Info("Project deleted",
		"layer", "registry",
		"operation", "project_delete",
		"project", project.Name,
		"project_id", project.ID)
	return nil
}

// AllocatePort reserves the first free port of the (role, environment
// class) block for the project, creating the Environment row when it does
// not exist yet. The allocation, the environment port column and the
// history entry commit in one transaction. Re-allocating an existing
// (project, env, role) returns the existing allocation unchanged.
//
// A concurrent insert of the same port rolls the transaction back with a
// uniqueness violation; the scan is retried exactly once against the
// now-committed state, then surfaced as ConflictError.
func (s *Service) AllocatePort(ctx context.Context, actor string, projectID uuid.UUID, env domain.EnvironmentClass, role domain.PortRole) (*domain.PortAllocation, error) {
	if !env.IsValid() {
		return nil, domain.NewValidationError("invalid environment: %q", string(env))
	}
	if !role.IsValid() {
		return nil, domain.NewValidationError("invalid port role: %q", string(role))
	}
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status != domain.ProjectStatusActive {
		return nil, domain.NewValidationError("project %s is %s; ports can only be allocated for active projects", project.Name, project.Status)
	}

	block, err := RangeFor(role, env)
	if err != nil {
		return nil, domain.NewValidationError("%s", err.Error())
	}

	unlock := s.locks.Lock(envKey(projectID, env))
	defer unlock()

	var (
		allocated *domain.PortAllocation
		candidate int
	)
	attempt := func() error {
		allocated = nil
		return s.store.Transaction(func(tx *repository.Store) error {
			environment, err := ensureEnvironment(tx, project.ID, env)
			if err != nil {
				return err
			}

			existing, err := tx.Allocations.FindByEnvAndRole(environment.ID, role)
			if err == nil {
				// Idempotent: same triple returns the same port, no new
				// history entry
				allocated = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			taken, err := tx.Allocations.ListPortsInRange(block.Start, block.End)
			if err != nil {
				return err
			}
			candidate = firstFreePort(block, taken)
			if candidate == 0 {
				return &domain.RangeExhaustedError{Class: env, Role: role, Start: block.Start, End: block.End}
			}

			allocation := &domain.PortAllocation{
				ID:            uuid.New(),
				Port:          candidate,
				Role:          role,
				Class:         env,
				ProjectID:     project.ID,
				EnvironmentID: environment.ID,
			}
			created, err := tx.Allocations.Create(allocation)
			if err != nil {
				return err
			}

			setEnvironmentPort(environment, role, candidate)
			if err := tx.Environments.Update(environment); err != nil {
				return err
			}

			entry := historyEntry(actor, domain.OpAllocatePort, &project.ID, &env,
				fmt.Sprintf("allocated %s port %d for %s/%s", role, candidate, project.Name, env))
			entry.After = snapshotJSON(created)
			if err := tx.History.Create(&entry); err != nil {
				return err
			}

			allocated = created
			return nil
		})
	}

	err = attempt()
	if isUniqueViolation(err) {
		slog.Warn("Port allocation conflict, retrying with next candidate",
			"layer", "registry",
			"operation", "allocate_port",
			"port", candidate,
			"project", project.Name,
			"environment", env.String())
		err = attempt()
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{
				Resource: "port",
				Value:    strconv.Itoa(candidate),
				Reason:   fmt.Sprintf("port %d was allocated concurrently and the retry collided too", candidate),
			}
		}
		return nil, err
	}

	return allocated, nil
}

// BindDomain points a public domain at one (project, environment). A domain
// maps to at most one target; re-binding the same pair is idempotent, any
// other existing binding is a conflict.
func (s *Service) BindDomain(ctx context.Context, actor, domainName string, projectID uuid.UUID, env domain.EnvironmentClass) (*domain.DomainBinding, error) {
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if domainName == "" || strings.ContainsAny(domainName, " /") || !strings.Contains(domainName, ".") {
		return nil, domain.NewValidationError("invalid domain name: %q", domainName)
	}
	if !env.IsValid() {
		return nil, domain.NewValidationError("invalid environment: %q", string(env))
	}
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(envKey(projectID, env))
	defer unlock()

	var binding *domain.DomainBinding
	err = s.store.Transaction(func(tx *repository.Store) error {
		environment, err := tx.Environments.FindByProjectAndName(projectID, env)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("environment %s/%s: %w", project.Name, env, domain.ErrNotFound)
			}
			return err
		}

		existing, err := tx.Domains.FindByDomain(domainName)
		if err == nil {
			if existing.ProjectID == projectID && existing.Environment == env {
				binding = existing
				return nil
			}
			owner := existing.ProjectID.String()
			if ownerProject, err := tx.Projects.FindByID(existing.ProjectID); err == nil {
				owner = ownerProject.Name
			}
			return &domain.ConflictError{
				Resource: "domain",
				Value:    domainName,
				Reason:   fmt.Sprintf("domain %s is already bound to %s/%s", domainName, owner, existing.Environment),
			}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		created, err := tx.Domains.Create(&domain.DomainBinding{
			ID:          uuid.New(),
			Domain:      domainName,
			ProjectID:   projectID,
			Environment: env,
		})
		if err != nil {
			return err
		}

		environment.Domain = &domainName
		if err := tx.Environments.Update(environment); err != nil {
			return err
		}

		entry := historyEntry(actor, domain.OpBindDomain, &projectID, &env,
			fmt.Sprintf("bound domain %s to %s/%s", domainName, project.Name, env))
		entry.After = snapshotJSON(created)
		if err := tx.History.Create(&entry); err != nil {
			return err
		}

		binding = created
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{
				Resource: "domain",
				Value:    domainName,
				Reason:   fmt.Sprintf("domain %s was bound concurrently", domainName),
			}
		}
		return nil, err
	}
	return binding, nil
}

// GetEnvironment retrieves one environment of a project
func (s *Service) GetEnvironment(ctx context.Context, projectID uuid.UUID, env domain.EnvironmentClass) (*domain.Environment, error) {
	environment, err := s.store.Environments.FindByProjectAndName(projectID, env)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("environment %s of project %s: %w", env, projectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get environment %s of project %s: %w", env, projectID, err)
	}
	return environment, nil
}

// ListEnvironments returns all environments of a project
func (s *Service) ListEnvironments(ctx context.Context, projectID uuid.UUID) ([]*domain.Environment, error) {
	return s.store.Environments.ListByProjectID(projectID)
}

// ListAllocations returns all port allocations of a project
func (s *Service) ListAllocations(ctx context.Context, projectID uuid.UUID) ([]*domain.PortAllocation, error) {
	return s.store.Allocations.ListByProjectID(projectID)
}

// ListBindings returns all domain bindings of a project
func (s *Service) ListBindings(ctx context.Context, projectID uuid.UUID) ([]*domain.DomainBinding, error) {
	return s.store.Domains.ListByProjectID(projectID)
}

// RecordChange appends one entry to the change history. Used by the layers
// above for mutations that do not run inside a registry transaction
// (deploys, promotions, protection decisions).
func (s *Service) RecordChange(ctx context.Context, entry domain.ChangeHistoryEntry) error {
	if entry.Actor == "" {
		return domain.NewValidationError("change history entry needs an actor")
	}
	if entry.Operation == "" {
		return domain.NewValidationError("change history entry needs an operation")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return s.store.History.Create(&entry)
}

// History returns change history entries, newest first, optionally scoped
// to one project
func (s *Service) History(ctx context.Context, projectID *uuid.UUID, limit int) ([]*domain.ChangeHistoryEntry, error) {
	if projectID != nil {
		return s.store.History.ListByProjectID(*projectID, limit)
	}
	return s.store.History.List(limit)
}

// ensureEnvironment returns the (project, class) environment row, creating
// it when absent. Ports start unset; allocation fills them in.
func ensureEnvironment(tx *repository.Store, projectID uuid.UUID, env domain.EnvironmentClass) (*domain.Environment, error) {
	environment, err := tx.Environments.FindByProjectAndName(projectID, env)
	if err == nil {
		return environment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	fresh := domain.NewEnvironment(projectID, env)
	return tx.Environments.Create(&fresh)
}

// setEnvironmentPort records the allocated port on the environment row
func setEnvironmentPort(environment *domain.Environment, role domain.PortRole, port int) {
	switch role {
	case domain.PortRoleApp:
		environment.AppPort = port
	case domain.PortRoleDB:
		environment.DBPort = &port
	case domain.PortRoleCache:
		environment.CachePort = &port
	}
}

// firstFreePort scans the block ascending against the sorted taken list and
// returns the first gap, 0 when the block is exhausted
func firstFreePort(block PortRange, taken []int) int {
	next := block.Start
	for _, port := range taken {
		if port > next {
			break
		}
		if port == next {
			next++
		}
	}
	if next > block.End {
		return 0
	}
	return next
}

func historyEntry(actor string, operation domain.OperationKind, projectID *uuid.UUID, env *domain.EnvironmentClass, details string) domain.ChangeHistoryEntry {
	entry := domain.NewChangeHistoryEntry(actor, operation)
	entry.ProjectID = projectID
	entry.Environment = env
	entry.Details = details
	return entry
}

func snapshotJSON(v any) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// isUniqueViolation matches sqlite's uniqueness errors surfaced through gorm
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
