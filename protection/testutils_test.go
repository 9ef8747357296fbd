package protection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/rudder-cd/rudder/backup"
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/repository"
	"github.com/rudder-cd/rudder/token"
)

type protectionFixture struct {
	service *Service
	store   *repository.Store
	tokens  *token.Service
	bus     *events.Bus
	project *domain.Project
}

// setupProtection builds a protection service on an in-memory database with
// generated fernet keys and one registered project
func setupProtection(t *testing.T) *protectionFixture {
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

	userKey, err := token.GenerateKey()
	require.NoError(t, err)
	adminKey, err := token.GenerateKey()
	require.NoError(t, err)
	tokens, err := token.NewService(userKey, adminKey, 10*time.Minute)
	require.NoError(t, err)

	bus := events.NewBus()
	verifier := backup.NewVerifier(store, 24*time.Hour)

	project := domain.NewProject("shop", domain.ProjectTypeNextJS, nil)
	created, err := store.Projects.Create(&project)
	require.NoError(t, err)

	return &protectionFixture{
		service: NewService(store, tokens, verifier, bus, DefaultConfig()),
		store:   store,
		tokens:  tokens,
		bus:     bus,
		project: created,
	}
}

// recordBackup seeds a verified backup taken the given duration ago
func (f *protectionFixture) recordBackup(t *testing.T, age time.Duration) {
	t.Helper()
	_, err := f.store.Backups.Create(&domain.BackupRecord{
		ID:        uuid.New(),
		ProjectID: f.project.ID,
		Location:  "s3://backups/shop/latest.tar.zst",
		Verified:  true,
		TakenAt:   time.Now().Add(-age),
	})
	require.NoError(t, err)
}

// seedSettledTicket inserts a consumed ticket so cooldown checks have an
// anchor settled the given duration ago
func (f *protectionFixture) seedSettledTicket(t *testing.T, op domain.OperationKind, target string, age time.Duration) {
	t.Helper()
	consumed := time.Now().Add(-age)
	confirmed := consumed.Add(-time.Minute)
	_, err := f.store.Tickets.Create(&domain.ConfirmationTicket{
		ID:           uuid.New(),
		Operation:    op,
		Level:        domain.DangerHigh,
		ProjectID:    &f.project.ID,
		Target:       target,
		ConfirmToken: "settled",
		RequiredRole: domain.ConfirmRoleUser,
		RequestedBy:  "tester",
		ExpiresAt:    confirmed.Add(10 * time.Minute),
		Status:       domain.TicketStatusConfirmed,
		ConfirmedAt:  &confirmed,
		ConsumedAt:   &consumed,
	})
	require.NoError(t, err)
}

// expireTicket rewinds a ticket's deadline so reads treat it as stale
func (f *protectionFixture) expireTicket(t *testing.T, ticket *domain.ConfirmationTicket) {
	t.Helper()
	ticket.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, f.store.Tickets.Update(ticket))
}

// adminCredential mints a fresh emergency credential under the admin key
func (f *protectionFixture) adminCredential(t *testing.T) string {
	t.Helper()
	credential, err := f.tokens.MintCredential(domain.ConfirmRoleAdmin, EmergencyPurpose)
	require.NoError(t, err)
	return credential
}
