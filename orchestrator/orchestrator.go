// Package orchestrator drives a deployment through its fixed stage order:
// network, database, database access rules, cache, registry login, image
// gate, image pull, environment synthesis, application start. The database
// stage is fatal to everything after it; the cache stage is not, the
// deployment continues degraded. Stages already brought up are never torn
// down on a later failure, so an application bug cannot destroy a working
// database.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/rudder-cd/rudder/config"
	"github.com/rudder-cd/rudder/docker"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/exec"
	"github.com/rudder-cd/rudder/protection"
	"github.com/rudder-cd/rudder/registry"
)

// Runtime is the engine surface the pipeline drives
type Runtime interface {
	EnsureNetwork(ctx context.Context, host, name string) (string, error)
	EnsureVolume(ctx context.Context, host, name string) error
	RunContainer(ctx context.Context, host string, spec docker.ContainerSpec) (string, error)
	StopContainer(ctx context.Context, host, name string) error
	RemoveContainer(ctx context.Context, host, name string) error
	InspectContainer(ctx context.Context, host, name string) (*docker.ContainerState, error)
	ExecInContainer(ctx context.Context, host, name string, argv []string, stdin string) (*exec.Result, error)
	PullImage(ctx context.Context, host, image string) error
	RegistryLogin(ctx context.Context, host, registry, username, password string) error
}

// SlotTracker is the slot bookkeeping the pipeline drives: pick the target
// before the stages, settle it after
type SlotTracker interface {
	BeginDeploy(ctx context.Context, environmentID uuid.UUID, image string) (*domain.Slot, error)
	CompleteDeploy(ctx context.Context, slotID uuid.UUID, containerID string) (*domain.Slot, error)
	FailDeploy(ctx context.Context, slotID uuid.UUID) error
}

type Orchestrator struct {
	registry   *registry.Service
	protection *protection.Service
	slots      SlotTracker
	runtime    Runtime
	bus        *events.Bus
	cfg        *config.Config
}

func New(reg *registry.Service, prot *protection.Service, slots SlotTracker, runtime Runtime, bus *events.Bus, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		registry:   reg,
		protection: prot,
		slots:      slots,
		runtime:    runtime,
		bus:        bus,
		cfg:        cfg,
	}
}

// DeployRequest is one deploy invocation. TicketID carries the confirmed
// protection ticket when the target environment requires one.
type DeployRequest struct {
	Actor    string
	Config   *DeployConfig
	TicketID *uuid.UUID
}

// dbCredentials is the resolved database identity, shared between the
// database stage and connection string synthesis
type dbCredentials struct {
	name     string
	user     string
	password string
}

// DeployProject runs the full pipeline. The returned result lists what
// happened to every requested service even when the returned error is
// non-nil; a cache-only failure is not an error.
func (o *Orchestrator) DeployProject(ctx context.Context, req DeployRequest) (*domain.DeploymentResult, error) {
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, domain.NewValidationError("actor is required")
	}
	cfg := req.Config
	if cfg == nil {
		return nil, domain.NewValidationError("deploy config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	project, err := o.registry.FindProjectByName(ctx, cfg.Project)
	if err != nil {
		return nil, err
	}
	if project.Status != domain.ProjectStatusActive {
		return nil, domain.NewValidationError("project %s is %s; only active projects can be deployed", project.Name, project.Status)
	}

	env := cfg.Environment
	err = o.protection.Require(ctx, protection.Request{
		Operation: domain.OpDeploy,
		Target:    domain.OperationTarget(project.Name, env),
		ProjectID: &project.ID,
		Actor:     actor,
		TicketID:  req.TicketID,
	})
	if err != nil {
		return nil, err
	}

	if err := o.reservePorts(ctx, actor, project.ID, cfg); err != nil {
		return nil, err
	}
	environment, err := o.registry.GetEnvironment(ctx, project.ID, env)
	if err != nil {
		return nil, err
	}

	unlock := o.registry.LockEnvironment(project.ID, env)
	defer unlock()

	slot, err := o.slots.BeginDeploy(ctx, environment.ID, cfg.Image)
	if err != nil {
		return nil, err
	}

	// The ticket is spent the moment execution is committed; there is no
	// abort once the stages start replacing containers.
	if req.TicketID != nil {
		if err := o.protection.Consume(ctx, *req.TicketID); err != nil {
			_ = o.slots.FailDeploy(ctx, slot.ID)
			return nil, err
		}
	}

	result := &domain.DeploymentResult{
		Project:     project.Name,
		Environment: env,
		Slot:        slot.Name,
		StartedAt:   time.Now(),
	}

	slog.Info("Deployment started",
		"layer", "orchestrator",
		"operation", "deploy",
		"project", project.Name,
		"environment", env.String(),
		"slot", slot.Name.String(),
		"image", cfg.Image)
	o.publish(events.DeploymentStarted, project.Name, env,
		fmt.Sprintf("deploying %s to slot %s", cfg.Image, slot.Name))

	stageErr := o.runStages(ctx, cfg, project, environment, slot, result)
	result.FinishedAt = time.Now()

	if stageErr != nil {
		_ = o.slots.FailDeploy(ctx, slot.ID)
		o.recordOutcome(ctx, actor, cfg.Image, project, env, result, stageErr)
		if anyRunning(result) {
			return result, &domain.PartialFailureError{Result: result, Reason: stageErr.Error()}
		}
		return result, &domain.TotalFailureError{Result: result, Reason: stageErr.Error()}
	}

	appResult := result.ServiceResultFor(domain.ServiceApp)
	if _, err := o.slots.CompleteDeploy(ctx, slot.ID, *appResult.ContainerID); err != nil {
		o.recordOutcome(ctx, actor, cfg.Image, project, env, result, err)
		return result, fmt.Errorf("deployment came up but slot bookkeeping failed: %w", err)
	}

	result.Success = true
	result.PublicURL = o.publicURL(cfg, environment)
	o.recordOutcome(ctx, actor, cfg.Image, project, env, result, nil)
	return result, nil
}

// PlanDeploy reports the stages a deploy would run without touching the
// engine or the protection layer. Everything it does is a read.
func (o *Orchestrator) PlanDeploy(ctx context.Context, req DeployRequest) (*domain.DeploymentPlan, error) {
	cfg := req.Config
	if cfg == nil {
		return nil, domain.NewValidationError("deploy config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	project, err := o.registry.FindProjectByName(ctx, cfg.Project)
	if err != nil {
		return nil, err
	}
	if project.Status != domain.ProjectStatusActive {
		return nil, domain.NewValidationError("project %s is %s; only active projects can be deployed", project.Name, project.Status)
	}

	env := cfg.Environment
	plan := &domain.DeploymentPlan{Project: project.Name, Environment: env}
	add := func(stage int, op domain.OperationKind, format string, args ...any) {
		plan.Actions = append(plan.Actions, domain.PlannedAction{
			Stage:       stage,
			Operation:   op,
			Description: fmt.Sprintf(format, args...),
		})
	}

	add(1, domain.OpNetworkCreate, "ensure network %s", cfg.networkName(project.Name))
	if cfg.Database != nil {
		add(2, domain.OpContainerStart, "recreate database container %s against volume %s and wait healthy",
			domain.DBContainerName(project.Name, env), domain.DBVolumeName(project.Name, env))
		add(3, domain.OpContainerStart, "open database access for the network address range")
	}
	if cfg.Cache != nil {
		add(4, domain.OpContainerStart, "recreate cache container %s and wait healthy, continuing degraded on failure",
			domain.CacheContainerName(project.Name, env))
	}
	if cfg.Registry != nil {
		add(5, domain.OpImagePull, "authenticate against registry %s", cfg.Registry.Server)
	}
	add(6, domain.OpDeploy, "require registry-qualified image %s", cfg.Image)
	add(7, domain.OpImagePull, "pull image %s", cfg.Image)
	add(8, domain.OpDeploy, "synthesize connection strings and merge caller environment")
	add(9, domain.OpContainerStart, "start application container on the inactive slot and wait healthy")
	add(10, domain.OpDeploy, "report per-service status and the public URL")
	return plan, nil
}

// reservePorts asks the registry for the ports this deployment needs.
// Allocation is idempotent per (environment, role), so redeploys get the
// same ports back.
func (o *Orchestrator) reservePorts(ctx context.Context, actor string, projectID uuid.UUID, cfg *DeployConfig) error {
	roles := []domain.PortRole{domain.PortRoleApp}
	if cfg.Database != nil {
		roles = append(roles, domain.PortRoleDB)
	}
	if cfg.Cache != nil {
		roles = append(roles, domain.PortRoleCache)
	}
	for _, role := range roles {
		if _, err := o.registry.AllocatePort(ctx, actor, projectID, cfg.Environment, role); err != nil {
			return err
		}
	}
	return nil
}

// runStages executes stages 1 through 9 in order, appending a ServiceResult
// per requested service. The returned error is the first fatal stage
// failure; services that never got their stage are marked skipped.
func (o *Orchestrator) runStages(ctx context.Context, cfg *DeployConfig, project *domain.Project, environment *domain.Environment, slot *domain.Slot, result *domain.DeploymentResult) error {
	host := cfg.Host
	env := environment.Name
	network := cfg.networkName(project.Name)

	subnet, err := o.runtime.EnsureNetwork(ctx, host, network)
	if err != nil {
		skipRemaining(result, cfg)
		return fmt.Errorf("network stage failed: %w", err)
	}

	var creds *dbCredentials
	if cfg.Database != nil {
		password, err := cfg.Database.resolvePassword()
		if err != nil {
			skipRemaining(result, cfg)
			return err
		}
		creds = &dbCredentials{
			name:     cfg.Database.databaseName(project.Name),
			user:     cfg.Database.username(project.Name),
			password: password,
		}

		svc := o.deployDatabase(ctx, host, cfg, project, environment, network, subnet, creds)
		result.Services = append(result.Services, svc)
		if svc.Status != domain.ServiceRunning {
			skipRemaining(result, cfg)
			return fmt.Errorf("database stage failed: %s", svc.Error)
		}
	}

	if cfg.Cache != nil {
		svc := o.deployCache(ctx, host, cfg, project, environment, network)
		result.Services = append(result.Services, svc)
		if svc.Status != domain.ServiceRunning {
			slog.Warn("Cache stage failed, continuing without cache",
				"layer", "orchestrator",
				"operation", "deploy",
				"project", project.Name,
				"environment", env.String(),
				"error", svc.Error)
		}
	}

	if cfg.Registry != nil {
		password, err := cfg.Registry.resolvePassword()
		if err == nil {
			err = o.runtime.RegistryLogin(ctx, host, cfg.Registry.Server, cfg.Registry.Username, password)
		}
		if err != nil {
			skipRemaining(result, cfg)
			return fmt.Errorf("registry login failed: %w", err)
		}
	}

	if err := o.runtime.PullImage(ctx, host, cfg.Image); err != nil {
		skipRemaining(result, cfg)
		return fmt.Errorf("image pull failed: %w", err)
	}

	appEnv, err := o.composeEnv(cfg, result, creds)
	if err != nil {
		skipRemaining(result, cfg)
		return fmt.Errorf("environment synthesis failed: %w", err)
	}

	svc := o.deployApp(ctx, host, cfg, project, environment, slot, network, appEnv)
	result.Services = append(result.Services, svc)
	if svc.Status != domain.ServiceRunning {
		return fmt.Errorf("application stage failed: %s", svc.Error)
	}
	return nil
}

// deployDatabase runs stages 2 and 3: recreate the database container
// against its named volume, wait for it to settle healthy, then open access
// for the container network's address range. Any failure here is fatal to
// the whole deployment.
func (o *Orchestrator) deployDatabase(ctx context.Context, host string, cfg *DeployConfig, project *domain.Project, environment *domain.Environment, network, subnet string, creds *dbCredentials) domain.ServiceResult {
	started := time.Now()
	svc := domain.ServiceResult{Name: domain.ServiceDB, Status: domain.ServiceFailed}
	name := domain.DBContainerName(project.Name, environment.Name)
	volume := domain.DBVolumeName(project.Name, environment.Name)

	fail := func(err error) domain.ServiceResult {
		svc.Error = err.Error()
		svc.Duration = time.Since(started)
		slog.Error("Database stage failed",
			"layer", "orchestrator",
			"operation", "deploy",
			"container", name,
			"error", err)
		return svc
	}

	if err := o.runtime.EnsureVolume(ctx, host, volume); err != nil {
		return fail(err)
	}
	if err := o.replaceContainer(ctx, host, name); err != nil {
		return fail(err)
	}

	spec := docker.ContainerSpec{
		Name:         name,
		Image:        cfg.Database.imageOr(o.cfg.DBImage),
		Network:      network,
		NetworkAlias: "db",
		Env: map[string]string{
			"POSTGRES_DB":       creds.name,
			"POSTGRES_USER":     creds.user,
			"POSTGRES_PASSWORD": creds.password,
		},
		Labels:        containerLabels(project.Name, environment.Name),
		Volumes:       []docker.Mount{{Volume: volume, Path: "/var/lib/postgresql/data"}},
		RestartPolicy: "unless-stopped",
		Health: &docker.HealthCheck{
			Cmd:      fmt.Sprintf("pg_isready -U %s", creds.user),
			Interval: o.cfg.HealthInterval,
			Timeout:  o.cfg.HealthInterval,
			Retries:  3,
		},
	}
	if environment.DBPort != nil {
		spec.Ports = []docker.PortBinding{{HostPort: *environment.DBPort, ContainerPort: 5432}}
	}

	containerID, err := o.runtime.RunContainer(ctx, host, spec)
	if err != nil {
		return fail(err)
	}
	svc.ContainerID = &containerID

	if err := o.waitReady(ctx, host, name, o.cfg.HealthTimeout); err != nil {
		return fail(err)
	}
	if err := o.configureDBAccess(ctx, host, name, creds, subnet); err != nil {
		return fail(err)
	}

	state, err := o.runtime.InspectContainer(ctx, host, name)
	if err != nil {
		return fail(err)
	}
	ip := state.IPs[network]
	svc.ContainerIP = &ip
	svc.Status = domain.ServiceRunning
	svc.Duration = time.Since(started)
	return svc
}

// configureDBAccess appends a pg_hba rule scoped to the network's subnet
// and reloads the server config. The rule append is guarded so redeploys
// do not stack duplicates.
func (o *Orchestrator) configureDBAccess(ctx context.Context, host, name string, creds *dbCredentials, subnet string) error {
	if subnet == "" {
		return nil
	}
	rule := fmt.Sprintf("host %s %s %s scram-sha-256", creds.name, creds.user, subnet)
	appendRule := fmt.Sprintf(`grep -qxF '%s' "$PGDATA/pg_hba.conf" || echo '%s' >> "$PGDATA/pg_hba.conf"`, rule, rule)
	if _, err := o.runtime.ExecInContainer(ctx, host, name, []string{"sh", "-c", appendRule}, ""); err != nil {
		return fmt.Errorf("failed to write database access rule: %w", err)
	}
	argv := []string{"psql", "-U", creds.user, "-d", creds.name, "-c", "SELECT pg_reload_conf()"}
	if _, err := o.runtime.ExecInContainer(ctx, host, name, argv, ""); err != nil {
		return fmt.Errorf("failed to reload database config: %w", err)
	}
	return nil
}

// deployCache runs stage 4. The caller treats a failed result as degraded
// mode, not as a deployment failure.
func (o *Orchestrator) deployCache(ctx context.Context, host string, cfg *DeployConfig, project *domain.Project, environment *domain.Environment, network string) domain.ServiceResult {
	started := time.Now()
	svc := domain.ServiceResult{Name: domain.ServiceCache, Status: domain.ServiceFailed}
	name := domain.CacheContainerName(project.Name, environment.Name)

	fail := func(err error) domain.ServiceResult {
		svc.Error = err.Error()
		svc.Duration = time.Since(started)
		return svc
	}

	if err := o.replaceContainer(ctx, host, name); err != nil {
		return fail(err)
	}

	spec := docker.ContainerSpec{
		Name:          name,
		Image:         cfg.Cache.imageOr(o.cfg.CacheImage),
		Network:       network,
		NetworkAlias:  "cache",
		Labels:        containerLabels(project.Name, environment.Name),
		RestartPolicy: "unless-stopped",
		Health: &docker.HealthCheck{
			Cmd:      "redis-cli ping",
			Interval: o.cfg.HealthInterval,
			Timeout:  o.cfg.HealthInterval,
			Retries:  3,
		},
	}
	if environment.CachePort != nil {
		spec.Ports = []docker.PortBinding{{HostPort: *environment.CachePort, ContainerPort: 6379}}
	}

	containerID, err := o.runtime.RunContainer(ctx, host, spec)
	if err != nil {
		return fail(err)
	}
	svc.ContainerID = &containerID

	if err := o.waitReady(ctx, host, name, o.cfg.HealthTimeout); err != nil {
		return fail(err)
	}

	state, err := o.runtime.InspectContainer(ctx, host, name)
	if err != nil {
		return fail(err)
	}
	ip := state.IPs[network]
	svc.ContainerIP = &ip
	svc.Status = domain.ServiceRunning
	svc.Duration = time.Since(started)
	return svc
}

// deployApp runs stage 9 against the slot chosen by BeginDeploy
func (o *Orchestrator) deployApp(ctx context.Context, host string, cfg *DeployConfig, project *domain.Project, environment *domain.Environment, slot *domain.Slot, network string, appEnv map[string]string) domain.ServiceResult {
	started := time.Now()
	svc := domain.ServiceResult{Name: domain.ServiceApp, Status: domain.ServiceFailed}
	name := domain.AppContainerName(project.Name, environment.Name, slot.Name)

	fail := func(err error) domain.ServiceResult {
		svc.Error = err.Error()
		svc.Duration = time.Since(started)
		slog.Error("Application stage failed",
			"layer", "orchestrator",
			"operation", "deploy",
			"container", name,
			"error", err)
		return svc
	}

	if err := o.replaceContainer(ctx, host, name); err != nil {
		return fail(err)
	}

	spec := docker.ContainerSpec{
		Name:          name,
		Image:         cfg.Image,
		Network:       network,
		Env:           appEnv,
		Labels:        containerLabels(project.Name, environment.Name),
		Ports:         []docker.PortBinding{{HostPort: environment.AppPort, ContainerPort: cfg.AppPort}},
		RestartPolicy: "unless-stopped",
	}
	if cfg.HealthCmd != "" {
		spec.Health = &docker.HealthCheck{
			Cmd:      cfg.HealthCmd,
			Interval: o.cfg.HealthInterval,
			Timeout:  o.cfg.HealthInterval,
			Retries:  3,
		}
	}

	containerID, err := o.runtime.RunContainer(ctx, host, spec)
	if err != nil {
		return fail(err)
	}
	svc.ContainerID = &containerID

	if err := o.waitReady(ctx, host, name, o.cfg.HealthTimeout); err != nil {
		return fail(err)
	}

	state, err := o.runtime.InspectContainer(ctx, host, name)
	if err != nil {
		return fail(err)
	}
	ip := state.IPs[network]
	svc.ContainerIP = &ip
	svc.Status = domain.ServiceRunning
	svc.Duration = time.Since(started)
	return svc
}

// composeEnv builds the application container environment: synthesized
// connection strings first, the caller's env file over them, inline
// variables last
func (o *Orchestrator) composeEnv(cfg *DeployConfig, result *domain.DeploymentResult, creds *dbCredentials) (map[string]string, error) {
	appEnv := map[string]string{
		"PORT": strconv.Itoa(cfg.AppPort),
	}
	if db := result.ServiceResultFor(domain.ServiceDB); db != nil && db.Status == domain.ServiceRunning && db.ContainerIP != nil {
		appEnv["DATABASE_URL"] = fmt.Sprintf("postgres://%s:%s@%s:5432/%s",
			creds.user, creds.password, *db.ContainerIP, creds.name)
	}
	if cache := result.ServiceResultFor(domain.ServiceCache); cache != nil && cache.Status == domain.ServiceRunning && cache.ContainerIP != nil {
		appEnv["REDIS_URL"] = fmt.Sprintf("redis://%s:6379", *cache.ContainerIP)
	}

	caller, err := cfg.runtimeEnv()
	if err != nil {
		return nil, err
	}
	for k, v := range caller {
		appEnv[k] = v
	}
	return appEnv, nil
}

// replaceContainer stops and removes a same-named container so redeploys
// are idempotent. Missing containers are fine; volumes are never touched.
func (o *Orchestrator) replaceContainer(ctx context.Context, host, name string) error {
	if err := o.runtime.StopContainer(ctx, host, name); err != nil {
		return err
	}
	return o.runtime.RemoveContainer(ctx, host, name)
}

func (o *Orchestrator) publicURL(cfg *DeployConfig, environment *domain.Environment) *string {
	if environment.Domain != nil {
		u := config.PublicURL(*environment.Domain)
		return &u
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	u := fmt.Sprintf("http://%s:%d", host, environment.AppPort)
	return &u
}

// recordOutcome appends the deploy to the change history and publishes the
// terminal event. History failures are logged, not returned: the
// deployment outcome is already decided.
func (o *Orchestrator) recordOutcome(ctx context.Context, actor, image string, project *domain.Project, env domain.EnvironmentClass, result *domain.DeploymentResult, stageErr error) {
	summary := resultSummary(result)

	if stageErr == nil {
		slog.Info("Deployment finished",
			"layer", "orchestrator",
			"operation", "deploy",
			"project", project.Name,
			"environment", env.String(),
			"duration", result.Duration().Round(time.Millisecond),
			"services", summary)
		o.publish(events.DeploymentSuccess, project.Name, env, summary)
	} else {
		slog.Error("Deployment failed",
			"layer", "orchestrator",
			"operation", "deploy",
			"project", project.Name,
			"environment", env.String(),
			"services", summary,
			"error", stageErr)
		o.publish(events.DeploymentFailed, project.Name, env, summary)
	}

	entry := domain.NewChangeHistoryEntry(actor, domain.OpDeploy)
	entry.ProjectID = &project.ID
	envName := env
	entry.Environment = &envName
	outcome := "succeeded"
	if stageErr != nil {
		outcome = "failed"
	}
	entry.Details = fmt.Sprintf("deploy of %s to %s/%s slot %s %s (%s)",
		image, project.Name, env, result.Slot, outcome, summary)
	if err := o.registry.RecordChange(ctx, entry); err != nil {
		slog.Error("Failed to record deployment history",
			"layer", "orchestrator",
			"project", project.Name,
			"error", err)
	}
}

func (o *Orchestrator) publish(eventType events.Type, projectName string, env domain.EnvironmentClass, details string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.Event{
		Type:        eventType,
		Project:     projectName,
		Environment: env.String(),
		Operation:   domain.OpDeploy.String(),
		Details:     details,
	})
}

func containerLabels(projectName string, env domain.EnvironmentClass) map[string]string {
	return map[string]string{
		"rudder.project":     slug.Make(projectName),
		"rudder.environment": env.String(),
	}
}

func skipRemaining(result *domain.DeploymentResult, cfg *DeployConfig) {
	for _, name := range cfg.requestedServices() {
		if result.ServiceResultFor(name) == nil {
			result.Services = append(result.Services, domain.ServiceResult{
				Name:   name,
				Status: domain.ServiceSkipped,
			})
		}
	}
}

func anyRunning(result *domain.DeploymentResult) bool {
	for _, s := range result.Services {
		if s.Status == domain.ServiceRunning {
			return true
		}
	}
	return false
}

// resultSummary renders per-service outcomes for logs and history, e.g.
// "db: running, cache: failed, app: running"
func resultSummary(result *domain.DeploymentResult) string {
	if len(result.Services) == 0 {
		return "no services started"
	}
	parts := make([]string, 0, len(result.Services))
	for _, s := range result.Services {
		parts = append(parts, fmt.Sprintf("%s: %s", s.Name, s.Status))
	}
	return strings.Join(parts, ", ")
}
