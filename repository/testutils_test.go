package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
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

	return database
}

func setupTestStore(t *testing.T) *Store {
	return NewStore(setupTestDB(t))
}

func createTestProject() *domain.Project {
	return &domain.Project{
		ID:      uuid.New(),
		Name:    "test-project",
		Type:    domain.ProjectTypeNextJS,
		GitRepo: stringPtr("https://github.com/acme/shop.git"),
		Status:  domain.ProjectStatusActive,
	}
}

func createTestEnvironment(projectID uuid.UUID) *domain.Environment {
	return &domain.Environment{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      domain.EnvStaging,
		AppPort:   3000,
	}
}

func createTestTicket(operation domain.OperationKind, target string) *domain.ConfirmationTicket {
	return &domain.ConfirmationTicket{
		ID:           uuid.New(),
		Operation:    operation,
		Level:        domain.DangerMedium,
		Target:       target,
		ConfirmToken: "test-token",
		RequiredRole: domain.ConfirmRoleUser,
		RequestedBy:  "tester",
		ExpiresAt:    time.Now().Add(10 * time.Minute),
		Status:       domain.TicketStatusPending,
	}
}

func stringPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
