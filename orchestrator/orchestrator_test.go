package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/rudder-cd/rudder/backup"
	"github.com/rudder-cd/rudder/config"
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/docker"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/exec"
	"github.com/rudder-cd/rudder/protection"
	"github.com/rudder-cd/rudder/proxy"
	"github.com/rudder-cd/rudder/registry"
	"github.com/rudder-cd/rudder/repository"
	"github.com/rudder-cd/rudder/slot"
	"github.com/rudder-cd/rudder/token"
)

// fakeRuntime plays the engine: containers spring into their scripted state
// the moment they run, and every call is recorded for assertions
type fakeRuntime struct {
	networks map[string]string
	volumes  []string
	states   map[string]*docker.ContainerState
	specs    map[string]docker.ContainerSpec

	runOrder []string
	pulled   []string
	stopped  []string
	removed  []string
	logins   []string
	execs    map[string][][]string

	// healthScript overrides the reported health per inspect, holding the
	// last entry once the script runs out
	healthScript map[string][]string
	runErr       map[string]error
	networkErr   error
	pullErr      error
	loginErr     error
	execErr      error

	nextIP int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		networks:     make(map[string]string),
		states:       make(map[string]*docker.ContainerState),
		specs:        make(map[string]docker.ContainerSpec),
		execs:        make(map[string][][]string),
		healthScript: make(map[string][]string),
		runErr:       make(map[string]error),
		nextIP:       10,
	}
}

func (f *fakeRuntime) EnsureNetwork(_ context.Context, _, name string) (string, error) {
	if f.networkErr != nil {
		return "", f.networkErr
	}
	if _, ok := f.networks[name]; !ok {
		f.networks[name] = "172.20.0.0/16"
	}
	return f.networks[name], nil
}

func (f *fakeRuntime) EnsureVolume(_ context.Context, _, name string) error {
	f.volumes = append(f.volumes, name)
	return nil
}

func (f *fakeRuntime) RunContainer(_ context.Context, _ string, spec docker.ContainerSpec) (string, error) {
	if err := f.runErr[spec.Name]; err != nil {
		return "", err
	}
	f.runOrder = append(f.runOrder, spec.Name)
	f.specs[spec.Name] = spec
	f.nextIP++
	health := ""
	if spec.Health != nil {
		health = "healthy"
	}
	f.states[spec.Name] = &docker.ContainerState{
		ID:      "cid-" + spec.Name,
		Name:    spec.Name,
		Image:   spec.Image,
		Running: true,
		Status:  "running",
		Health:  health,
		Labels:  spec.Labels,
		IPs:     map[string]string{spec.Network: fmt.Sprintf("172.20.0.%d", f.nextIP)},
	}
	return "cid-" + spec.Name, nil
}

func (f *fakeRuntime) StopContainer(_ context.Context, _, name string) error {
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeRuntime) RemoveContainer(_ context.Context, _, name string) error {
	f.removed = append(f.removed, name)
	delete(f.states, name)
	return nil
}

func (f *fakeRuntime) InspectContainer(_ context.Context, _, name string) (*docker.ContainerState, error) {
	state, ok := f.states[name]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", name, domain.ErrNotFound)
	}
	if script := f.healthScript[name]; len(script) > 0 {
		state.Health = script[0]
		if len(script) > 1 {
			f.healthScript[name] = script[1:]
		}
	}
	return state, nil
}

func (f *fakeRuntime) ExecInContainer(_ context.Context, _, name string, argv []string, _ string) (*exec.Result, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.execs[name] = append(f.execs[name], argv)
	return &exec.Result{ExitCode: 0}, nil
}

func (f *fakeRuntime) PullImage(_ context.Context, _, image string) error {
	if f.pullErr != nil {
		return f.pullErr
	}
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *fakeRuntime) RegistryLogin(_ context.Context, _, server, username, _ string) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.logins = append(f.logins, server+":"+username)
	return nil
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	store        *repository.Store
	registry     *registry.Service
	protection   *protection.Service
	runtime      *fakeRuntime
	bus          *events.Bus
	project      *domain.Project
}

func setupOrchestrator(t *testing.T) *orchestratorFixture {
	t.Helper()
	ctx := context.Background()

	database, err := db.InitDatabase(db.DBConfig{
		Path:     ":memory:",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAll(database))
	store := repository.NewStore(database)
	reg := registry.NewService(store)

	project, err := reg.RegisterProject(ctx, "tester", registry.ProjectConfig{
		Name: "shop",
		Type: domain.ProjectTypeNextJS,
	})
	require.NoError(t, err)

	userKey, err := token.GenerateKey()
	require.NoError(t, err)
	adminKey, err := token.GenerateKey()
	require.NoError(t, err)
	tokens, err := token.NewService(userKey, adminKey, 10*time.Minute)
	require.NoError(t, err)

	bus := events.NewBus()
	verifier := backup.NewVerifier(store, 24*time.Hour)
	prot := protection.NewService(store, tokens, verifier, bus, protection.DefaultConfig())

	runtime := newFakeRuntime()
	slots := slot.NewManager(store, reg, prot, proxy.NewMemoryRouter(), runtime, bus, "")

	// Millisecond health waits keep the timeout paths fast
	cfg := &config.Config{
		DockerCommand:  "docker",
		HealthInterval: time.Millisecond,
		HealthTimeout:  50 * time.Millisecond,
		DBImage:        "postgres:16-alpine",
		CacheImage:     "redis:7-alpine",
	}

	return &orchestratorFixture{
		orchestrator: New(reg, prot, slots, runtime, bus, cfg),
		store:        store,
		registry:     reg,
		protection:   prot,
		runtime:      runtime,
		bus:          bus,
		project:      project,
	}
}

// deployConfig builds a full staging deploy: database, cache and app
func (f *orchestratorFixture) deployConfig() *DeployConfig {
	return &DeployConfig{
		Project:     "shop",
		Environment: domain.EnvStaging,
		Image:       "registry.example.com/acme/shop:v1",
		Database:    &DatabaseService{Password: "sekret"},
		Cache:       &CacheService{},
		Env:         map[string]string{"NODE_ENV": "production"},
	}
}

func (f *orchestratorFixture) stagingEnvironment(t *testing.T) *domain.Environment {
	t.Helper()
	environment, err := f.registry.GetEnvironment(context.Background(), f.project.ID, domain.EnvStaging)
	require.NoError(t, err)
	return environment
}

func (f *orchestratorFixture) slotRecord(t *testing.T, name domain.SlotName) *domain.Slot {
	t.Helper()
	record, err := f.store.Slots.FindByEnvAndName(f.stagingEnvironment(t).ID, name)
	require.NoError(t, err)
	return record
}

// deployHistoryCount counts deploy entries in the change history
func deployHistoryCount(t *testing.T, store *repository.Store) int {
	t.Helper()
	entries, err := store.History.List(0)
	require.NoError(t, err)
	count := 0
	for _, entry := range entries {
		if entry.Operation == domain.OpDeploy {
			count++
		}
	}
	return count
}

func TestDeployProject_FullStack(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	_, eventCh := f.bus.Subscribe(8)

	// Test
	result, err := f.orchestrator.DeployProject(ctx, DeployRequest{Actor: "alice", Config: f.deployConfig()})

	// Assertions
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "shop", result.Project)
	assert.Equal(t, domain.EnvStaging, result.Environment)
	assert.Equal(t, domain.SlotBlue, result.Slot)

	// All three services came up, in stage order
	require.Len(t, result.Services, 3)
	assert.Equal(t, []string{"shop-staging-db", "shop-staging-cache", "shop-staging-blue"}, f.runtime.runOrder)
	for _, svc := range result.Services {
		assert.Equal(t, domain.ServiceRunning, svc.Status, string(svc.Name))
		assert.NotNil(t, svc.ContainerID)
		assert.NotNil(t, svc.ContainerIP)
	}

	// Network, volume and image side effects
	assert.Contains(t, f.runtime.networks, "shop-staging-net")
	assert.Equal(t, []string{"shop-staging-pgdata"}, f.runtime.volumes)
	assert.Equal(t, []string{"registry.example.com/acme/shop:v1"}, f.runtime.pulled)

	// The app container got the synthesized wiring and the caller's env
	appSpec := f.runtime.specs["shop-staging-blue"]
	dbIP := *result.ServiceResultFor(domain.ServiceDB).ContainerIP
	cacheIP := *result.ServiceResultFor(domain.ServiceCache).ContainerIP
	assert.Equal(t, fmt.Sprintf("postgres://shop:sekret@%s:5432/shop", dbIP), appSpec.Env["DATABASE_URL"])
	assert.Equal(t, fmt.Sprintf("redis://%s:6379", cacheIP), appSpec.Env["REDIS_URL"])
	assert.Equal(t, "3000", appSpec.Env["PORT"])
	assert.Equal(t, "production", appSpec.Env["NODE_ENV"])
	assert.Equal(t, "shop", appSpec.Labels["rudder.project"])
	assert.Equal(t, "staging", appSpec.Labels["rudder.environment"])

	// Host port from the registry allocation, container port from the config
	environment := f.stagingEnvironment(t)
	require.Len(t, appSpec.Ports, 1)
	assert.Equal(t, environment.AppPort, appSpec.Ports[0].HostPort)
	assert.Equal(t, 3000, appSpec.Ports[0].ContainerPort)
	assert.NotNil(t, environment.DBPort)
	assert.NotNil(t, environment.CachePort)

	// The slot settled healthy on the app container; promotion is separate
	record := f.slotRecord(t, domain.SlotBlue)
	assert.Equal(t, domain.SlotStatusHealthy, record.Status)
	require.NotNil(t, record.ContainerID)
	assert.Equal(t, "cid-shop-staging-blue", *record.ContainerID)
	assert.False(t, record.IsActive)

	require.NotNil(t, result.PublicURL)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", environment.AppPort), *result.PublicURL)

	started := <-eventCh
	assert.Equal(t, events.DeploymentStarted, started.Type)
	finished := <-eventCh
	assert.Equal(t, events.DeploymentSuccess, finished.Type)
	assert.Equal(t, "shop", finished.Project)

	assert.Equal(t, 1, deployHistoryCount(t, f.store))
}

func TestDeployProject_AppOnly(t *testing.T) {
	f := setupOrchestrator(t)
	cfg := &DeployConfig{
		Project:     "shop",
		Environment: domain.EnvStaging,
		Image:       "registry.example.com/acme/shop:v1",
	}

	// Test
	result, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: cfg})

	// Assertions
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Services, 1)
	assert.Equal(t, domain.ServiceApp, result.Services[0].Name)
	assert.Equal(t, []string{"shop-staging-blue"}, f.runtime.runOrder)
	assert.Empty(t, f.runtime.volumes)

	appSpec := f.runtime.specs["shop-staging-blue"]
	assert.NotContains(t, appSpec.Env, "DATABASE_URL")
	assert.NotContains(t, appSpec.Env, "REDIS_URL")

	// Only the app port was reserved
	environment := f.stagingEnvironment(t)
	assert.Nil(t, environment.DBPort)
	assert.Nil(t, environment.CachePort)
}

func TestDeployProject_DatabaseFailureIsFatal(t *testing.T) {
	f := setupOrchestrator(t)
	// The database container never reports healthy
	f.runtime.healthScript["shop-staging-db"] = []string{"starting"}

	// Test
	result, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: f.deployConfig()})

	// Assertions
	var total *domain.TotalFailureError
	require.ErrorAs(t, err, &total)
	assert.Contains(t, total.Reason, "database stage failed")
	require.NotNil(t, result)
	assert.False(t, result.Success)

	dbResult := result.ServiceResultFor(domain.ServiceDB)
	require.NotNil(t, dbResult)
	assert.Equal(t, domain.ServiceFailed, dbResult.Status)
	assert.Contains(t, dbResult.Error, "timed out")

	// Cache and app never ran
	assert.Equal(t, domain.ServiceSkipped, result.ServiceResultFor(domain.ServiceCache).Status)
	assert.Equal(t, domain.ServiceSkipped, result.ServiceResultFor(domain.ServiceApp).Status)
	assert.Equal(t, []string{"shop-staging-db"}, f.runtime.runOrder)
	assert.Empty(t, f.runtime.pulled)

	record := f.slotRecord(t, domain.SlotBlue)
	assert.Equal(t, domain.SlotStatusFailed, record.Status)
}

func TestDeployProject_CacheFailureDegrades(t *testing.T) {
	f := setupOrchestrator(t)
	f.runtime.runErr["shop-staging-cache"] = errors.New("no space left on device")
	_, eventCh := f.bus.Subscribe(8)

	// Test
	result, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: f.deployConfig()})

	// Assertions: the deployment succeeds without its cache
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.ServiceRunning, result.ServiceResultFor(domain.ServiceDB).Status)
	assert.Equal(t, domain.ServiceFailed, result.ServiceResultFor(domain.ServiceCache).Status)
	assert.Equal(t, domain.ServiceRunning, result.ServiceResultFor(domain.ServiceApp).Status)

	appSpec := f.runtime.specs["shop-staging-blue"]
	assert.Contains(t, appSpec.Env, "DATABASE_URL")
	assert.NotContains(t, appSpec.Env, "REDIS_URL")

	record := f.slotRecord(t, domain.SlotBlue)
	assert.Equal(t, domain.SlotStatusHealthy, record.Status)

	started := <-eventCh
	assert.Equal(t, events.DeploymentStarted, started.Type)
	finished := <-eventCh
	assert.Equal(t, events.DeploymentSuccess, finished.Type)
	assert.Contains(t, finished.Details, "cache: failed")
}

func TestDeployProject_AppFailureIsPartial(t *testing.T) {
	f := setupOrchestrator(t)
	cfg := f.deployConfig()
	cfg.HealthCmd = "curl -f http://localhost:3000/healthz"
	f.runtime.healthScript["shop-staging-blue"] = []string{"unhealthy"}

	// Test
	result, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: cfg})

	// Assertions
	var partial *domain.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Contains(t, partial.Reason, "application stage failed")
	assert.False(t, result.Success)
	assert.Equal(t, domain.ServiceRunning, result.ServiceResultFor(domain.ServiceDB).Status)
	assert.Equal(t, domain.ServiceRunning, result.ServiceResultFor(domain.ServiceCache).Status)
	assert.Equal(t, domain.ServiceFailed, result.ServiceResultFor(domain.ServiceApp).Status)

	// The services that came up stay up
	assert.Contains(t, f.runtime.states, "shop-staging-db")
	assert.Contains(t, f.runtime.states, "shop-staging-cache")

	record := f.slotRecord(t, domain.SlotBlue)
	assert.Equal(t, domain.SlotStatusFailed, record.Status)
	assert.Nil(t, record.ContainerID)
}

func TestDeployProject_NetworkFailureIsTotal(t *testing.T) {
	f := setupOrchestrator(t)
	f.runtime.networkErr = errors.New("iptables: chain already exists")

	// Test
	result, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: f.deployConfig()})

	// Assertions
	var total *domain.TotalFailureError
	require.ErrorAs(t, err, &total)
	assert.Contains(t, total.Reason, "network stage failed")
	require.NotNil(t, result)
	for _, svc := range result.Services {
		assert.Equal(t, domain.ServiceSkipped, svc.Status, string(svc.Name))
	}
	assert.Empty(t, f.runtime.runOrder)
}

func TestDeployProject_RegistryLogin(t *testing.T) {
	f := setupOrchestrator(t)
	cfg := f.deployConfig()
	cfg.Registry = &RegistryAuth{Server: "registry.example.com", Username: "deployer", Password: "hunter2"}

	// Test
	result, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: cfg})

	// Assertions
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"registry.example.com:deployer"}, f.runtime.logins)
}

func TestDeployProject_RegistryLoginFailureIsPartial(t *testing.T) {
	f := setupOrchestrator(t)
	cfg := f.deployConfig()
	cfg.Registry = &RegistryAuth{Server: "registry.example.com", Username: "deployer", Password: "wrong"}
	f.runtime.loginErr = errors.New("401 unauthorized")

	// Test
	result, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: cfg})

	// Assertions: database and cache are already up, so the failure is partial
	var partial *domain.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Contains(t, partial.Reason, "registry login failed")
	assert.Equal(t, domain.ServiceRunning, result.ServiceResultFor(domain.ServiceDB).Status)
	assert.Equal(t, domain.ServiceSkipped, result.ServiceResultFor(domain.ServiceApp).Status)
	assert.Empty(t, f.runtime.pulled)
}

func TestDeployProject_OpensDatabaseAccess(t *testing.T) {
	f := setupOrchestrator(t)

	// Test
	_, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: f.deployConfig()})

	// Assertions: the guarded pg_hba append scoped to the network subnet,
	// then the config reload
	require.NoError(t, err)
	execs := f.runtime.execs["shop-staging-db"]
	require.Len(t, execs, 2)
	assert.Equal(t, "sh", execs[0][0])
	assert.Contains(t, execs[0][2], "pg_hba.conf")
	assert.Contains(t, execs[0][2], "172.20.0.0/16")
	assert.Equal(t, "psql", execs[1][0])
	assert.Contains(t, execs[1], "SELECT pg_reload_conf()")
}

func TestDeployProject_RejectsUnqualifiedImage(t *testing.T) {
	f := setupOrchestrator(t)
	cfg := f.deployConfig()
	cfg.Image = "shop:v1"

	// Test
	result, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: cfg})

	// Assertions: rejected before anything touched the engine
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "not registry-qualified")
	assert.Empty(t, f.runtime.runOrder)
	assert.Empty(t, f.runtime.networks)
	assert.Empty(t, f.runtime.pulled)
}

func TestDeployProject_RejectsUntaggedImage(t *testing.T) {
	f := setupOrchestrator(t)
	cfg := f.deployConfig()
	cfg.Image = "registry.example.com/acme/shop"

	// Test
	result, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: cfg})

	// Assertions
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "tag or digest")
	assert.Empty(t, f.runtime.runOrder)
}

func TestDeployProject_RequiresActor(t *testing.T) {
	f := setupOrchestrator(t)

	// Test
	_, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Config: f.deployConfig()})

	// Assertions
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actor is required")
}

func TestDeployProject_UnknownProject(t *testing.T) {
	f := setupOrchestrator(t)
	cfg := f.deployConfig()
	cfg.Project = "ghost"

	// Test
	_, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: cfg})

	// Assertions
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.runtime.runOrder)
}

func TestDeployProject_RejectsArchivedProject(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	_, err := f.registry.ArchiveProject(ctx, "tester", f.project.ID)
	require.NoError(t, err)

	// Test
	result, err := f.orchestrator.DeployProject(ctx, DeployRequest{Actor: "alice", Config: f.deployConfig()})

	// Assertions
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "only active projects")
	assert.Empty(t, f.runtime.runOrder)
}

func TestDeployProject_ProductionNeedsConfirmation(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	cfg := f.deployConfig()
	cfg.Environment = domain.EnvProduction

	// Test: without a ticket the deploy is queued, not run
	result, err := f.orchestrator.DeployProject(ctx, DeployRequest{Actor: "alice", Config: cfg})

	// Assertions
	var needs *domain.NeedsConfirmationError
	require.ErrorAs(t, err, &needs)
	assert.Nil(t, result)
	assert.Empty(t, f.runtime.runOrder)

	// Confirm and retry with the ticket
	_, err = f.protection.ConfirmTicket(ctx, needs.Ticket.ID, needs.Ticket.ConfirmToken, domain.ConfirmRoleUser)
	require.NoError(t, err)

	result, err = f.orchestrator.DeployProject(ctx, DeployRequest{Actor: "alice", Config: cfg, TicketID: &needs.Ticket.ID})
	require.NoError(t, err)
	assert.True(t, result.Success)

	// The ticket is spent by execution
	ticket, err := f.protection.GetTicket(ctx, needs.Ticket.ID)
	require.NoError(t, err)
	assert.NotNil(t, ticket.ConsumedAt)
}

func TestDeployProject_RedeployTargetsOtherSlot(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	first, err := f.orchestrator.DeployProject(ctx, DeployRequest{Actor: "alice", Config: f.deployConfig()})
	require.NoError(t, err)
	require.Equal(t, domain.SlotBlue, first.Slot)

	// Test: the second deploy lands on the counterpart slot
	second, err := f.orchestrator.DeployProject(ctx, DeployRequest{Actor: "alice", Config: f.deployConfig()})

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotGreen, second.Slot)
	assert.Equal(t, []string{
		"shop-staging-db", "shop-staging-cache", "shop-staging-blue",
		"shop-staging-db", "shop-staging-cache", "shop-staging-green",
	}, f.runtime.runOrder)

	// Shared services are recreated; their volumes are never touched
	assert.Contains(t, f.runtime.stopped, "shop-staging-db")
	assert.Contains(t, f.runtime.removed, "shop-staging-db")
	assert.Equal(t, []string{"shop-staging-pgdata", "shop-staging-pgdata"}, f.runtime.volumes)

	// Both slots hold healthy releases now, on the same allocated ports
	assert.Equal(t, domain.SlotStatusHealthy, f.slotRecord(t, domain.SlotBlue).Status)
	assert.Equal(t, domain.SlotStatusHealthy, f.slotRecord(t, domain.SlotGreen).Status)
	assert.Equal(t,
		f.runtime.specs["shop-staging-blue"].Ports,
		f.runtime.specs["shop-staging-green"].Ports)
}

func TestDeployProject_MergesEnvFile(t *testing.T) {
	f := setupOrchestrator(t)
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("FROM_FILE=yes\nNODE_ENV=development\n"), 0o644))
	cfg := f.deployConfig()
	cfg.EnvFile = envPath

	// Test
	_, err := f.orchestrator.DeployProject(context.Background(), DeployRequest{Actor: "alice", Config: cfg})

	// Assertions: file values land, inline entries win
	require.NoError(t, err)
	appSpec := f.runtime.specs["shop-staging-blue"]
	assert.Equal(t, "yes", appSpec.Env["FROM_FILE"])
	assert.Equal(t, "production", appSpec.Env["NODE_ENV"])
}

func TestDeployProject_PublicURLPrefersDomain(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	_, err := f.registry.AllocatePort(ctx, "tester", f.project.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)
	_, err = f.registry.BindDomain(ctx, "tester", "staging.shop.example.com", f.project.ID, domain.EnvStaging)
	require.NoError(t, err)

	// Test
	result, err := f.orchestrator.DeployProject(ctx, DeployRequest{Actor: "alice", Config: f.deployConfig()})

	// Assertions
	require.NoError(t, err)
	require.NotNil(t, result.PublicURL)
	assert.Equal(t, "https://staging.shop.example.com", *result.PublicURL)
}

func TestPlanDeploy_ListsStagesWithoutTouchingEngine(t *testing.T) {
	f := setupOrchestrator(t)

	// Test
	plan, err := f.orchestrator.PlanDeploy(context.Background(), DeployRequest{Actor: "alice", Config: f.deployConfig()})

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, "shop", plan.Project)
	assert.Equal(t, domain.EnvStaging, plan.Environment)
	require.Len(t, plan.Actions, 9)
	assert.Equal(t, 1, plan.Actions[0].Stage)
	assert.Contains(t, plan.Actions[0].Description, "shop-staging-net")
	assert.Contains(t, plan.Actions[1].Description, "shop-staging-db")
	assert.Equal(t, 10, plan.Actions[len(plan.Actions)-1].Stage)

	// A plan is a read: no engine calls, no history
	assert.Empty(t, f.runtime.runOrder)
	assert.Empty(t, f.runtime.networks)
	assert.Equal(t, 0, deployHistoryCount(t, f.store))
}

func TestPlanDeploy_ProductionMintsNoTicket(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	cfg := f.deployConfig()
	cfg.Environment = domain.EnvProduction

	// Test
	plan, err := f.orchestrator.PlanDeploy(ctx, DeployRequest{Actor: "alice", Config: cfg})

	// Assertions
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Actions)
	pending, err := f.protection.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPlanDeploy_SkipsUnrequestedStages(t *testing.T) {
	f := setupOrchestrator(t)
	cfg := &DeployConfig{
		Project:     "shop",
		Environment: domain.EnvStaging,
		Image:       "registry.example.com/acme/shop:v1",
	}

	// Test
	plan, err := f.orchestrator.PlanDeploy(context.Background(), DeployRequest{Actor: "alice", Config: cfg})

	// Assertions: no database, cache or registry stages
	require.NoError(t, err)
	require.Len(t, plan.Actions, 5)
	stages := make([]int, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		stages = append(stages, action.Stage)
	}
	assert.Equal(t, []int{1, 6, 7, 8, 9}, stages)
}

func TestWaitReady_SettlesAfterStarting(t *testing.T) {
	f := setupOrchestrator(t)
	f.runtime.states["shop-staging-db"] = &docker.ContainerState{
		Name: "shop-staging-db", Running: true, Status: "running", Health: "starting",
	}
	f.runtime.healthScript["shop-staging-db"] = []string{"starting", "starting", "healthy"}

	// Test
	err := f.orchestrator.waitReady(context.Background(), "", "shop-staging-db", time.Second)

	// Assertions
	require.NoError(t, err)
}

func TestWaitReady_TimesOut(t *testing.T) {
	f := setupOrchestrator(t)
	f.runtime.states["shop-staging-db"] = &docker.ContainerState{
		Name: "shop-staging-db", Running: true, Status: "running", Health: "starting",
	}

	// Test
	err := f.orchestrator.waitReady(context.Background(), "", "shop-staging-db", 20*time.Millisecond)

	// Assertions
	var timeout *domain.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Contains(t, timeout.Operation, "shop-staging-db")
}

func TestWaitReady_ExitedContainerIsFatal(t *testing.T) {
	f := setupOrchestrator(t)
	f.runtime.states["shop-staging-blue"] = &docker.ContainerState{
		Name: "shop-staging-blue", Running: false, Status: "exited", ExitCode: 137,
	}

	// Test
	err := f.orchestrator.waitReady(context.Background(), "", "shop-staging-blue", 50*time.Millisecond)

	// Assertions: a crashed container fails the wait immediately
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 137")
	var timeout *domain.TimeoutError
	assert.False(t, errors.As(err, &timeout))
}

func TestWaitReady_MissingContainerIsFatal(t *testing.T) {
	f := setupOrchestrator(t)

	// Test
	err := f.orchestrator.waitReady(context.Background(), "", "ghost", 50*time.Millisecond)

	// Assertions
	require.ErrorIs(t, err, domain.ErrNotFound)
}
