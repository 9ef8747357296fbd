package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm/logger"

	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/repository"
)

// setupTestService creates a registry service on an in-memory database
func setupTestService(t *testing.T) (*Service, *repository.Store) {
	t.Helper()
	database, err := db.InitDatabase(db.DBConfig{
		Path:     ":memory:",
		LogLevel: logger.Silent,
	})
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	if err := db.AutoMigrateAll(database); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	store := repository.NewStore(database)
	return NewService(store), store
}

func registerTestProject(t *testing.T, service *Service, name string) *domain.Project {
	t.Helper()
	project, err := service.RegisterProject(context.Background(), "tester", ProjectConfig{
		Name:    name,
		Type:    domain.ProjectTypeNextJS,
		GitRepo: "https://github.com/acme/" + name + ".git",
	})
	if err != nil {
		t.Fatalf("Failed to register test project: %v", err)
	}
	return project
}

// countHistory returns how many history entries exist for an operation kind
func countHistory(t *testing.T, store *repository.Store, op domain.OperationKind) int {
	t.Helper()
	entries, err := store.History.List(0)
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	count := 0
	for _, e := range entries {
		if e.Operation == op {
			count++
		}
	}
	return count
}

// seedRawAllocation inserts an allocation row directly, bypassing the
// service, for drift and validation scenarios
func seedRawAllocation(t *testing.T, store *repository.Store, port int, role domain.PortRole, class domain.EnvironmentClass, projectID, environmentID uuid.UUID) {
	t.Helper()
	_, err := store.Allocations.Create(&domain.PortAllocation{
		ID:            uuid.New(),
		Port:          port,
		Role:          role,
		Class:         class,
		ProjectID:     projectID,
		EnvironmentID: environmentID,
	})
	if err != nil {
		t.Fatalf("Failed to seed allocation: %v", err)
	}
}
