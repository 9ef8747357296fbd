package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudder-cd/rudder/domain"
)

func TestService_RegisterProject_Success(t *testing.T) {
	service, store := setupTestService(t)

	// Test
	project, err := service.RegisterProject(context.Background(), "alice", ProjectConfig{
		Name:    "shop",
		Type:    domain.ProjectTypeNextJS,
		GitRepo: "https://github.com/acme/shop.git",
	})

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, "shop", project.Name)
	assert.Equal(t, domain.ProjectStatusActive, project.Status)
	assert.Equal(t, "https://github.com/acme/shop.git", project.GitRepoStr())
	assert.Equal(t, 1, countHistory(t, store, domain.OpProjectRegister))
}

func TestService_RegisterProject_DuplicateName(t *testing.T) {
	service, _ := setupTestService(t)
	registerTestProject(t, service, "shop")

	// Test
	_, err := service.RegisterProject(context.Background(), "alice", ProjectConfig{
		Name: "shop",
		Type: domain.ProjectTypeNode,
	})

	// Assertions
	require.Error(t, err)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "project", conflict.Resource)
	assert.Contains(t, conflict.Error(), "shop")
}

func TestService_RegisterProject_Validation(t *testing.T) {
	service, _ := setupTestService(t)

	_, err := service.RegisterProject(context.Background(), "alice", ProjectConfig{Name: "  ", Type: domain.ProjectTypeNode})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = service.RegisterProject(context.Background(), "alice", ProjectConfig{Name: "shop", Type: "cobol"})
	require.ErrorAs(t, err, &validation)
}

func TestService_AllocatePort_FirstPortOfRange(t *testing.T) {
	service, store := setupTestService(t)
	project := registerTestProject(t, service, "shop")

	// Test
	allocation, err := service.AllocatePort(context.Background(), "alice", project.ID, domain.EnvStaging, domain.PortRoleApp)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, 3000, allocation.Port)
	assert.Equal(t, domain.PortRoleApp, allocation.Role)
	assert.Equal(t, domain.EnvStaging, allocation.Class)

	// The environment row was created in the same transaction and carries
	// the allocated port
	environment, err := service.GetEnvironment(context.Background(), project.ID, domain.EnvStaging)
	require.NoError(t, err)
	assert.Equal(t, 3000, environment.AppPort)
	assert.Equal(t, allocation.EnvironmentID, environment.ID)

	assert.Equal(t, 1, countHistory(t, store, domain.OpAllocatePort))
}

func TestService_AllocatePort_Idempotent(t *testing.T) {
	service, store := setupTestService(t)
	project := registerTestProject(t, service, "shop")
	ctx := context.Background()

	first, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)

	// Test
	second, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvStaging, domain.PortRoleApp)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, first.Port, second.Port)
	assert.Equal(t, first.ID, second.ID)
	// Idempotent re-allocation appends no second history entry
	assert.Equal(t, 1, countHistory(t, store, domain.OpAllocatePort))
}

func TestService_AllocatePort_AscendingScan(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	one := registerTestProject(t, service, "one")
	two := registerTestProject(t, service, "two")
	three := registerTestProject(t, service, "three")

	a1, err := service.AllocatePort(ctx, "alice", one.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)
	a2, err := service.AllocatePort(ctx, "alice", two.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)
	a3, err := service.AllocatePort(ctx, "alice", three.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)

	assert.Equal(t, []int{3000, 3001, 3002}, []int{a1.Port, a2.Port, a3.Port})
}

func TestService_AllocatePort_RolesDrawFromOwnRanges(t *testing.T) {
	service, _ := setupTestService(t)
	project := registerTestProject(t, service, "shop")
	ctx := context.Background()

	app, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)
	dbPort, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvStaging, domain.PortRoleDB)
	require.NoError(t, err)
	cache, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvStaging, domain.PortRoleCache)
	require.NoError(t, err)
	prodApp, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvProduction, domain.PortRoleApp)
	require.NoError(t, err)

	assert.Equal(t, 3000, app.Port)
	assert.Equal(t, 5400, dbPort.Port)
	assert.Equal(t, 6300, cache.Port)
	assert.Equal(t, 4000, prodApp.Port)

	// The environment rows record each port in its column
	staging, err := service.GetEnvironment(ctx, project.ID, domain.EnvStaging)
	require.NoError(t, err)
	assert.Equal(t, 3000, staging.AppPort)
	require.NotNil(t, staging.DBPort)
	assert.Equal(t, 5400, *staging.DBPort)
	require.NotNil(t, staging.CachePort)
	assert.Equal(t, 6300, *staging.CachePort)
}

func TestService_AllocatePort_SkipsSeededPorts(t *testing.T) {
	service, store := setupTestService(t)
	project := registerTestProject(t, service, "shop")
	other := registerTestProject(t, service, "other")
	ctx := context.Background()

	// Another project's environment already holds 3000 and 3001
	otherAlloc, err := service.AllocatePort(ctx, "alice", other.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)
	require.Equal(t, 3000, otherAlloc.Port)
	seedRawAllocation(t, store, 3001, domain.PortRoleApp, domain.EnvStaging, other.ID, otherAlloc.EnvironmentID)

	// Test
	allocation, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvStaging, domain.PortRoleApp)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, 3002, allocation.Port)
}

func TestService_AllocatePort_RangeExhausted(t *testing.T) {
	service, store := setupTestService(t)
	project := registerTestProject(t, service, "shop")

	// Fill the whole db/staging block (5400-5499)
	fillerEnv := uuid.New()
	fillerProject := uuid.New()
	for port := 5400; port <= 5499; port++ {
		seedRawAllocation(t, store, port, domain.PortRoleDB, domain.EnvStaging, fillerProject, fillerEnv)
	}

	// Test
	_, err := service.AllocatePort(context.Background(), "alice", project.ID, domain.EnvStaging, domain.PortRoleDB)

	// Assertions
	require.Error(t, err)
	var exhausted *domain.RangeExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, domain.EnvStaging, exhausted.Class)
	assert.Equal(t, domain.PortRoleDB, exhausted.Role)
	assert.Contains(t, err.Error(), "5400-5499")
}

func TestService_AllocatePort_InactiveProject(t *testing.T) {
	service, _ := setupTestService(t)
	project := registerTestProject(t, service, "shop")
	ctx := context.Background()

	_, err := service.ArchiveProject(ctx, "alice", project.ID)
	require.NoError(t, err)

	// Test
	_, err = service.AllocatePort(ctx, "alice", project.ID, domain.EnvStaging, domain.PortRoleApp)

	// Assertions
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, err.Error(), "archived")
}

func TestService_AllocatePort_UnknownProject(t *testing.T) {
	service, _ := setupTestService(t)

	// Test
	_, err := service.AllocatePort(context.Background(), "alice", uuid.New(), domain.EnvStaging, domain.PortRoleApp)

	// Assertions
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_BindDomain_Success(t *testing.T) {
	service, store := setupTestService(t)
	project := registerTestProject(t, service, "shop")
	ctx := context.Background()

	_, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvProduction, domain.PortRoleApp)
	require.NoError(t, err)

	// Test
	binding, err := service.BindDomain(ctx, "alice", "Shop.Example.COM", project.ID, domain.EnvProduction)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", binding.Domain)
	assert.Equal(t, project.ID, binding.ProjectID)
	assert.Equal(t, domain.EnvProduction, binding.Environment)

	environment, err := service.GetEnvironment(ctx, project.ID, domain.EnvProduction)
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", environment.DomainStr())
	assert.Equal(t, 1, countHistory(t, store, domain.OpBindDomain))
}

func TestService_BindDomain_Idempotent(t *testing.T) {
	service, store := setupTestService(t)
	project := registerTestProject(t, service, "shop")
	ctx := context.Background()

	_, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvProduction, domain.PortRoleApp)
	require.NoError(t, err)
	first, err := service.BindDomain(ctx, "alice", "shop.example.com", project.ID, domain.EnvProduction)
	require.NoError(t, err)

	// Test
	second, err := service.BindDomain(ctx, "alice", "shop.example.com", project.ID, domain.EnvProduction)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, countHistory(t, store, domain.OpBindDomain))
}

func TestService_BindDomain_Taken(t *testing.T) {
	service, _ := setupTestService(t)
	shop := registerTestProject(t, service, "shop")
	blog := registerTestProject(t, service, "blog")
	ctx := context.Background()

	_, err := service.AllocatePort(ctx, "alice", shop.ID, domain.EnvProduction, domain.PortRoleApp)
	require.NoError(t, err)
	_, err = service.AllocatePort(ctx, "alice", blog.ID, domain.EnvProduction, domain.PortRoleApp)
	require.NoError(t, err)
	_, err = service.BindDomain(ctx, "alice", "www.example.com", shop.ID, domain.EnvProduction)
	require.NoError(t, err)

	// Test
	_, err = service.BindDomain(ctx, "alice", "www.example.com", blog.ID, domain.EnvProduction)

	// Assertions
	require.Error(t, err)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "domain", conflict.Resource)
	assert.Contains(t, conflict.Error(), "shop")
}

func TestService_BindDomain_RequiresEnvironment(t *testing.T) {
	service, _ := setupTestService(t)
	project := registerTestProject(t, service, "shop")

	// Test: no environment was ever created for production
	_, err := service.BindDomain(context.Background(), "alice", "shop.example.com", project.ID, domain.EnvProduction)

	// Assertions
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_BindDomain_InvalidName(t *testing.T) {
	service, _ := setupTestService(t)
	project := registerTestProject(t, service, "shop")

	for _, name := range []string{"", "no spaces allowed.com", "nodots", "slash/path.com"} {
		_, err := service.BindDomain(context.Background(), "alice", name, project.ID, domain.EnvProduction)
		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation, "domain %q should be rejected", name)
	}
}

func TestService_ArchiveProject(t *testing.T) {
	service, _ := setupTestService(t)
	project := registerTestProject(t, service, "shop")
	ctx := context.Background()

	// Test
	archived, err := service.ArchiveProject(ctx, "alice", project.ID)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusArchived, archived.Status)

	// Archiving again is a no-op
	again, err := service.ArchiveProject(ctx, "alice", project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusArchived, again.Status)
}

func TestService_DeleteProject_ReleasesResources(t *testing.T) {
	service, store := setupTestService(t)
	project := registerTestProject(t, service, "shop")
	ctx := context.Background()

	allocation, err := service.AllocatePort(ctx, "alice", project.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)
	require.Equal(t, 3000, allocation.Port)
	_, err = service.BindDomain(ctx, "alice", "shop.example.com", project.ID, domain.EnvStaging)
	require.NoError(t, err)

	// Test
	err = service.DeleteProject(ctx, "alice", project.ID)

	// Assertions
	require.NoError(t, err)
	deleted, err := service.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusDeleted, deleted.Status)

	_, err = service.GetEnvironment(ctx, project.ID, domain.EnvStaging)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bindings, err := store.Domains.List()
	require.NoError(t, err)
	assert.Empty(t, bindings)

	// The released port is immediately reusable
	other := registerTestProject(t, service, "other")
	reused, err := service.AllocatePort(ctx, "alice", other.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)
	assert.Equal(t, 3000, reused.Port)
}

func TestService_RecordChange_Validation(t *testing.T) {
	service, _ := setupTestService(t)

	err := service.RecordChange(context.Background(), domain.ChangeHistoryEntry{Operation: domain.OpDeploy})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	err = service.RecordChange(context.Background(), domain.ChangeHistoryEntry{Actor: "alice"})
	require.ErrorAs(t, err, &validation)
}

func TestService_History_ScopedToProject(t *testing.T) {
	service, _ := setupTestService(t)
	shop := registerTestProject(t, service, "shop")
	registerTestProject(t, service, "blog")
	ctx := context.Background()

	_, err := service.AllocatePort(ctx, "alice", shop.ID, domain.EnvStaging, domain.PortRoleApp)
	require.NoError(t, err)

	// Test
	scoped, err := service.History(ctx, &shop.ID, 0)
	require.NoError(t, err)
	all, err := service.History(ctx, nil, 0)
	require.NoError(t, err)

	// Assertions
	assert.Len(t, scoped, 2) // register + allocate
	assert.Len(t, all, 3)    // plus blog's register
	for _, entry := range scoped {
		require.NotNil(t, entry.ProjectID)
		assert.Equal(t, shop.ID, *entry.ProjectID)
	}
}

func TestKeyedMutex_SameKeyBlocks(t *testing.T) {
	locks := NewKeyedMutex()
	unlock := locks.Lock("shop/staging")

	acquired := make(chan struct{})
	go func() {
		innerUnlock := locks.Lock("shop/staging")
		close(acquired)
		innerUnlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while it was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock after release")
	}
}

func TestKeyedMutex_DifferentKeysProceed(t *testing.T) {
	locks := NewKeyedMutex()
	unlock := locks.Lock("shop/staging")
	defer unlock()

	acquired := make(chan struct{})
	go func() {
		otherUnlock := locks.Lock("shop/production")
		close(acquired)
		otherUnlock()
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("different key was blocked")
	}
}

func TestFirstFreePort(t *testing.T) {
	block := PortRange{Start: 3000, End: 3004}

	assert.Equal(t, 3000, firstFreePort(block, nil))
	assert.Equal(t, 3001, firstFreePort(block, []int{3000}))
	assert.Equal(t, 3001, firstFreePort(block, []int{3000, 3002}))
	assert.Equal(t, 3000, firstFreePort(block, []int{3001, 3002}))
	assert.Equal(t, 3004, firstFreePort(block, []int{3000, 3001, 3002, 3003}))
	assert.Equal(t, 0, firstFreePort(block, []int{3000, 3001, 3002, 3003, 3004}))
}
