package slot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/rudder-cd/rudder/backup"
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/docker"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/protection"
	"github.com/rudder-cd/rudder/proxy"
	"github.com/rudder-cd/rudder/registry"
	"github.com/rudder-cd/rudder/repository"
	"github.com/rudder-cd/rudder/token"
)

// fakeInspector serves canned container states by name
type fakeInspector struct {
	states map[string]*docker.ContainerState
}

func (f *fakeInspector) InspectContainer(_ context.Context, _, name string) (*docker.ContainerState, error) {
	state, ok := f.states[name]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", name, domain.ErrNotFound)
	}
	return state, nil
}

func (f *fakeInspector) addReady(name string) {
	f.states[name] = &docker.ContainerState{Name: name, Running: true, Status: "running", Health: "healthy"}
}

// slotFixture is one project with a staging environment, a bound domain and
// everything a traffic flip touches
type slotFixture struct {
	manager     *Manager
	store       *repository.Store
	registry    *registry.Service
	protection  *protection.Service
	router      *proxy.MemoryRouter
	runtime     *fakeInspector
	bus         *events.Bus
	project     *domain.Project
	environment *domain.Environment
}

func setupSlotFixture(t *testing.T) *slotFixture {
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
	_, err = reg.AllocatePort(ctx, "tester", project.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)
	_, err = reg.BindDomain(ctx, "tester", "staging.shop.example.com", project.ID, domain.EnvStaging)
	require.NoError(t, err)
	environment, err := reg.GetEnvironment(ctx, project.ID, domain.EnvStaging)
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

	router := proxy.NewMemoryRouter()
	runtime := &fakeInspector{states: make(map[string]*docker.ContainerState)}

	return &slotFixture{
		manager:     NewManager(store, reg, prot, router, runtime, bus, ""),
		store:       store,
		registry:    reg,
		protection:  prot,
		router:      router,
		runtime:     runtime,
		bus:         bus,
		project:     project,
		environment: environment,
	}
}

// seedSlot inserts a slot record directly, bypassing the deploy pipeline
func (f *slotFixture) seedSlot(t *testing.T, name domain.SlotName, status domain.SlotStatus, active bool, deployedAgo time.Duration) *domain.Slot {
	t.Helper()
	record := domain.NewSlot(f.environment.ID, name)
	record.Status = status
	record.IsActive = active
	record.Image = "registry.example.com/acme/shop:" + string(name)
	if status == domain.SlotStatusHealthy {
		containerID := "cid-" + string(name)
		record.ContainerID = &containerID
		deployedAt := time.Now().Add(-deployedAgo)
		record.DeployedAt = &deployedAt
	}
	created, err := f.store.Slots.Create(&record)
	require.NoError(t, err)
	return created
}

func (f *slotFixture) containerName(name domain.SlotName) string {
	return domain.AppContainerName(f.project.Name, f.environment.Name, name)
}

func TestBeginDeploy_FirstDeployLandsOnBlue(t *testing.T) {
	f := setupSlotFixture(t)

	// Test
	target, err := f.manager.BeginDeploy(context.Background(), f.environment.ID, "registry.example.com/acme/shop:v1")

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotBlue, target.Name)
	assert.Equal(t, domain.SlotStatusDeploying, target.Status)
	assert.Equal(t, "registry.example.com/acme/shop:v1", target.Image)
	assert.False(t, target.IsActive)
}

func TestBeginDeploy_TargetsCounterpartOfActive(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, time.Hour)

	// Test
	target, err := f.manager.BeginDeploy(context.Background(), f.environment.ID, "registry.example.com/acme/shop:v2")

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotGreen, target.Name)
	assert.Equal(t, domain.SlotStatusDeploying, target.Status)
}

func TestBeginDeploy_SparesPromotableWhenNoneActive(t *testing.T) {
	f := setupSlotFixture(t)
	// Green holds a healthy release awaiting promotion; nothing is active yet
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, false, time.Hour)

	// Test
	target, err := f.manager.BeginDeploy(context.Background(), f.environment.ID, "registry.example.com/acme/shop:v3")

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotBlue, target.Name)
}

func TestBeginDeploy_ReusesExistingRecord(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, time.Hour)
	stale := f.seedSlot(t, domain.SlotGreen, domain.SlotStatusFailed, false, 0)

	// Test
	target, err := f.manager.BeginDeploy(context.Background(), f.environment.ID, "registry.example.com/acme/shop:v4")

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, stale.ID, target.ID)
	assert.Equal(t, domain.SlotStatusDeploying, target.Status)
	assert.Equal(t, "registry.example.com/acme/shop:v4", target.Image)

	slots, err := f.store.Slots.ListByEnvironmentID(f.environment.ID)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestBeginDeploy_RequiresImage(t *testing.T) {
	f := setupSlotFixture(t)

	// Test
	_, err := f.manager.BeginDeploy(context.Background(), f.environment.ID, "")

	// Assertions
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestCompleteDeploy_MarksHealthy(t *testing.T) {
	f := setupSlotFixture(t)
	target, err := f.manager.BeginDeploy(context.Background(), f.environment.ID, "registry.example.com/acme/shop:v1")
	require.NoError(t, err)

	// Test
	record, err := f.manager.CompleteDeploy(context.Background(), target.ID, "cid-fresh")

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotStatusHealthy, record.Status)
	require.NotNil(t, record.ContainerID)
	assert.Equal(t, "cid-fresh", *record.ContainerID)
	require.NotNil(t, record.DeployedAt)
	assert.WithinDuration(t, time.Now(), *record.DeployedAt, 5*time.Second)
	assert.True(t, record.Promotable())
}

func TestFailDeploy_MarksFailedAndClearsContainer(t *testing.T) {
	f := setupSlotFixture(t)
	target, err := f.manager.BeginDeploy(context.Background(), f.environment.ID, "registry.example.com/acme/shop:v1")
	require.NoError(t, err)

	// Test
	err = f.manager.FailDeploy(context.Background(), target.ID)

	// Assertions
	require.NoError(t, err)
	record, err := f.store.Slots.FindByID(target.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotStatusFailed, record.Status)
	assert.Nil(t, record.ContainerID)
	assert.False(t, record.Promotable())
}

func TestFailDeploy_UnknownSlot(t *testing.T) {
	f := setupSlotFixture(t)

	// Test
	err := f.manager.FailDeploy(context.Background(), uuid.New())

	// Assertions
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPromote_SwitchesTrafficAndRecords(t *testing.T) {
	f := setupSlotFixture(t)
	blue := f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, 2*time.Hour)
	green := f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, false, time.Hour)
	f.runtime.addReady(f.containerName(domain.SlotGreen))
	_, ch := f.bus.Subscribe(8)

	// Test
	promoted, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil, nil)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotGreen, promoted.Name)

	refreshedGreen, err := f.store.Slots.FindByID(green.ID)
	require.NoError(t, err)
	assert.True(t, refreshedGreen.IsActive)
	refreshedBlue, err := f.store.Slots.FindByID(blue.ID)
	require.NoError(t, err)
	assert.False(t, refreshedBlue.IsActive)

	route, err := f.router.Route(context.Background(), "staging.shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, registry.SlotRouteTarget(f.project.Name, f.environment, domain.SlotGreen), route.Target)

	entries, err := f.store.History.ListByProjectID(f.project.ID, 0)
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if e.Operation == domain.OpPromote {
			found = true
			assert.Equal(t, "alice", e.Actor)
			assert.Contains(t, e.Details, "green")
		}
	}
	assert.True(t, found, "expected a promote history entry")

	evt := <-ch
	assert.Equal(t, events.SlotPromoted, evt.Type)
	assert.Equal(t, "shop", evt.Project)
	assert.Equal(t, "staging", evt.Environment)
}

func TestPromote_ExplicitSlotName(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, time.Hour)
	// Green deployed before blue, so auto-selection would not pick it
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, false, 3*time.Hour)
	f.runtime.addReady(f.containerName(domain.SlotGreen))
	name := domain.SlotGreen

	// Test
	promoted, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, &name, nil)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotGreen, promoted.Name)
}

func TestPromote_PicksLatestPromotable(t *testing.T) {
	f := setupSlotFixture(t)
	// Nothing active, both slots hold healthy releases; the newer one wins
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, false, 4*time.Hour)
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, false, time.Hour)
	f.runtime.addReady(f.containerName(domain.SlotGreen))

	// Test
	promoted, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil, nil)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotGreen, promoted.Name)
	record, err := f.store.Slots.FindByID(promoted.ID)
	require.NoError(t, err)
	assert.True(t, record.IsActive)
}

func TestPromote_NoCandidate(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, time.Hour)

	// Test
	_, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil, nil)

	// Assertions
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "no promotable slot")
}

func TestPromote_AlreadyActive(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, time.Hour)
	name := domain.SlotBlue

	// Test
	_, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, &name, nil)

	// Assertions
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "already active")
}

func TestPromote_RejectsUnhealthyRecord(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, time.Hour)
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusFailed, false, 0)
	name := domain.SlotGreen

	// Test
	_, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, &name, nil)

	// Assertions
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "not healthy")
}

func TestPromote_RejectsMissingContainer(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, 2*time.Hour)
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, false, time.Hour)
	// No live container registered for green

	// Test
	_, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil, nil)

	// Assertions
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "no container")
}

func TestPromote_RejectsUnreadyContainer(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, 2*time.Hour)
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, false, time.Hour)
	f.runtime.states[f.containerName(domain.SlotGreen)] = &docker.ContainerState{
		Name:    f.containerName(domain.SlotGreen),
		Running: true,
		Status:  "running",
		Health:  "unhealthy",
	}

	// Test
	_, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil, nil)

	// Assertions
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "not ready")

	// The flip never happened
	record, err := f.store.Slots.FindActive(f.environment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotBlue, record.Name)
}

func TestPromote_UnknownExplicitSlot(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, time.Hour)
	name := domain.SlotGreen

	// Test
	_, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, &name, nil)

	// Assertions
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPromote_FirstPromotionWithNoActive(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, false, time.Hour)
	f.runtime.addReady(f.containerName(domain.SlotGreen))

	// Test
	promoted, err := f.manager.Promote(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil, nil)

	// Assertions
	require.NoError(t, err)
	record, err := f.store.Slots.FindByID(promoted.ID)
	require.NoError(t, err)
	assert.True(t, record.IsActive)
}

func TestPromote_NoDomainSkipsRoute(t *testing.T) {
	f := setupSlotFixture(t)
	ctx := context.Background()

	// Production has a port but no bound domain
	_, err := f.registry.AllocatePort(ctx, "tester", f.project.ID, domain.EnvProduction, domain.PortRoleApp)
	require.NoError(t, err)
	production, err := f.registry.GetEnvironment(ctx, f.project.ID, domain.EnvProduction)
	require.NoError(t, err)

	record := domain.NewSlot(production.ID, domain.SlotGreen)
	record.Status = domain.SlotStatusHealthy
	containerID := "cid-green"
	record.ContainerID = &containerID
	deployedAt := time.Now().Add(-time.Hour)
	record.DeployedAt = &deployedAt
	_, err = f.store.Slots.Create(&record)
	require.NoError(t, err)
	f.runtime.addReady(domain.AppContainerName(f.project.Name, domain.EnvProduction, domain.SlotGreen))

	// Production promotion needs a confirmed ticket first
	err = f.protection.Require(ctx, protection.Request{
		Operation: domain.OpPromote,
		Target:    domain.OperationTarget(f.project.Name, domain.EnvProduction),
		ProjectID: &f.project.ID,
		Actor:     "alice",
	})
	var needs *domain.NeedsConfirmationError
	require.ErrorAs(t, err, &needs)
	_, err = f.protection.ConfirmTicket(ctx, needs.Ticket.ID, needs.Ticket.ConfirmToken, domain.ConfirmRoleUser)
	require.NoError(t, err)

	// Test
	promoted, err := f.manager.Promote(ctx, "alice", f.project.ID, domain.EnvProduction, nil, &needs.Ticket.ID)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotGreen, promoted.Name)
	routes, err := f.router.Routes(ctx)
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestPromote_ProductionConsumesTicket(t *testing.T) {
	f := setupSlotFixture(t)
	ctx := context.Background()

	_, err := f.registry.AllocatePort(ctx, "tester", f.project.ID, domain.EnvProduction, domain.PortRoleApp)
	require.NoError(t, err)
	production, err := f.registry.GetEnvironment(ctx, f.project.ID, domain.EnvProduction)
	require.NoError(t, err)

	record := domain.NewSlot(production.ID, domain.SlotBlue)
	record.Status = domain.SlotStatusHealthy
	containerID := "cid-blue"
	record.ContainerID = &containerID
	deployedAt := time.Now().Add(-time.Hour)
	record.DeployedAt = &deployedAt
	_, err = f.store.Slots.Create(&record)
	require.NoError(t, err)
	f.runtime.addReady(domain.AppContainerName(f.project.Name, domain.EnvProduction, domain.SlotBlue))

	// Test: without a ticket the promotion queues instead of running
	_, err = f.manager.Promote(ctx, "alice", f.project.ID, domain.EnvProduction, nil, nil)
	var needs *domain.NeedsConfirmationError
	require.ErrorAs(t, err, &needs)

	_, err = f.protection.ConfirmTicket(ctx, needs.Ticket.ID, needs.Ticket.ConfirmToken, domain.ConfirmRoleUser)
	require.NoError(t, err)
	promoted, err := f.manager.Promote(ctx, "alice", f.project.ID, domain.EnvProduction, nil, &needs.Ticket.ID)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotBlue, promoted.Name)
	ticket, err := f.protection.GetTicket(ctx, needs.Ticket.ID)
	require.NoError(t, err)
	assert.NotNil(t, ticket.ConsumedAt)
}

func TestRollback_SwapsBack(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, true, time.Hour)
	blue := f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, false, 3*time.Hour)
	f.runtime.addReady(f.containerName(domain.SlotBlue))
	_, ch := f.bus.Subscribe(8)

	// Test
	restored, err := f.manager.Rollback(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotBlue, restored.Name)
	record, err := f.store.Slots.FindByID(blue.ID)
	require.NoError(t, err)
	assert.True(t, record.IsActive)

	route, err := f.router.Route(context.Background(), "staging.shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, registry.SlotRouteTarget(f.project.Name, f.environment, domain.SlotBlue), route.Target)

	evt := <-ch
	assert.Equal(t, events.SlotRolledBack, evt.Type)

	entries, err := f.store.History.ListByProjectID(f.project.ID, 0)
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if e.Operation == domain.OpRollback {
			found = true
		}
	}
	assert.True(t, found, "expected a rollback history entry")
}

func TestRollback_NoActiveSlot(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, false, time.Hour)

	// Test
	_, err := f.manager.Rollback(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil)

	// Assertions
	require.ErrorIs(t, err, domain.ErrNoPriorSlot)
}

func TestRollback_PriorNotPromotable(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, true, time.Hour)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusFailed, false, 0)

	// Test
	_, err := f.manager.Rollback(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil)

	// Assertions
	require.ErrorIs(t, err, domain.ErrNoPriorSlot)
}

func TestRollback_PriorContainerGone(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusHealthy, true, time.Hour)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, false, 3*time.Hour)
	// Blue's record claims healthy but the container is gone from the host

	// Test
	_, err := f.manager.Rollback(context.Background(), "alice", f.project.ID, domain.EnvStaging, nil)

	// Assertions
	require.ErrorIs(t, err, domain.ErrNoPriorSlot)

	record, err := f.store.Slots.FindActive(f.environment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotGreen, record.Name)
}

func TestStatus_MergesLiveState(t *testing.T) {
	f := setupSlotFixture(t)
	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, time.Hour)
	f.seedSlot(t, domain.SlotGreen, domain.SlotStatusFailed, false, 0)
	f.runtime.addReady(f.containerName(domain.SlotBlue))

	// Test
	views, err := f.manager.Status(context.Background(), f.project.ID, domain.EnvStaging)

	// Assertions
	require.NoError(t, err)
	require.Len(t, views, 2)

	byName := make(map[domain.SlotName]SlotView)
	for _, v := range views {
		byName[v.Record.Name] = v
	}
	require.NotNil(t, byName[domain.SlotBlue].Live)
	assert.True(t, byName[domain.SlotBlue].Live.Ready())
	assert.Nil(t, byName[domain.SlotGreen].Live)
}

func TestActiveSlot(t *testing.T) {
	f := setupSlotFixture(t)

	// Test: nothing active yet
	_, err := f.manager.ActiveSlot(context.Background(), f.environment.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	f.seedSlot(t, domain.SlotBlue, domain.SlotStatusHealthy, true, time.Hour)

	// Test: active slot present
	active, err := f.manager.ActiveSlot(context.Background(), f.environment.ID)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.SlotBlue, active.Name)
}
