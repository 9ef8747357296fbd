package protection

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudder-cd/rudder/domain"
)

func TestOpenEmergency_Success(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()

	// Test
	window, err := f.service.OpenEmergency(ctx, "alice", "regional outage", 30*time.Minute, f.adminCredential(t))

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, "alice", window.Actor)
	assert.True(t, window.Active(time.Now()))

	active, entries, err := f.service.EmergencyStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, window.ID, active.ID)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Note, "regional outage")
}

func TestOpenEmergency_RequiresAdminCredential(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()

	// A user-key credential is rejected
	userCredential, err := f.tokens.MintCredential(domain.ConfirmRoleUser, EmergencyPurpose)
	require.NoError(t, err)
	_, err = f.service.OpenEmergency(ctx, "alice", "sev1", 30*time.Minute, userCredential)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")

	// So is an admin credential minted for another purpose
	wrongPurpose, err := f.tokens.MintCredential(domain.ConfirmRoleAdmin, "keygen")
	require.NoError(t, err)
	_, err = f.service.OpenEmergency(ctx, "alice", "sev1", 30*time.Minute, wrongPurpose)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purpose")
}

func TestOpenEmergency_Validation(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()
	credential := f.adminCredential(t)

	var validationErr *domain.ValidationError

	_, err := f.service.OpenEmergency(ctx, "", "sev1", time.Hour, credential)
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.service.OpenEmergency(ctx, "alice", "  ", time.Hour, credential)
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.service.OpenEmergency(ctx, "alice", "sev1", 0, credential)
	assert.ErrorAs(t, err, &validationErr)

	// Capped at the configured maximum of 2h
	_, err = f.service.OpenEmergency(ctx, "alice", "sev1", 3*time.Hour, credential)
	assert.ErrorAs(t, err, &validationErr)
}

func TestOpenEmergency_SingleWindow(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()

	_, err := f.service.OpenEmergency(ctx, "alice", "sev1", time.Hour, f.adminCredential(t))
	require.NoError(t, err)

	// Test
	_, err = f.service.OpenEmergency(ctx, "bob", "another one", time.Hour, f.adminCredential(t))

	// Assertions
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "already open")
}

func TestEmergency_WaivesMediumConfirmation(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()
	_, err := f.service.OpenEmergency(ctx, "alice", "regional outage", time.Hour, f.adminCredential(t))
	require.NoError(t, err)

	// Test
	decision, err := f.service.Authorize(ctx, Request{
		Operation: domain.OpContainerStop,
		Target:    "shop/staging",
		Actor:     "bob",
	})

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllow, decision.Kind)

	// The waiver is on the record, attributed to the requesting actor
	_, entries, err := f.service.EmergencyStatus(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1].Note, "user_confirmation")
	assert.Equal(t, "bob", entries[1].Actor)
	require.NotNil(t, entries[1].Operation)
	assert.Equal(t, domain.OpContainerStop, *entries[1].Operation)
}

func TestEmergency_WaivesHighConfirmationAndCooldown(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()
	f.recordBackup(t, time.Hour)
	// A settled attempt minutes ago would normally hold the cooldown
	f.seedSettledTicket(t, domain.OpProjectDelete, "shop/staging", 10*time.Minute)

	_, err := f.service.OpenEmergency(ctx, "alice", "disk full", time.Hour, f.adminCredential(t))
	require.NoError(t, err)

	// Test
	decision, err := f.service.Authorize(ctx, Request{
		Operation: domain.OpProjectDelete,
		Target:    "shop/staging",
		ProjectID: &f.project.ID,
		Actor:     "bob",
	})

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllow, decision.Kind)

	_, entries, err := f.service.EmergencyStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3) // opening, confirmation waiver, cooldown waiver
}

func TestEmergency_NeverWaivesBackup(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()
	_, err := f.service.OpenEmergency(ctx, "alice", "disk full", time.Hour, f.adminCredential(t))
	require.NoError(t, err)

	// Test: no backup exists, and the window must not help
	decision, err := f.service.Authorize(ctx, Request{
		Operation: domain.OpProjectDelete,
		Target:    "shop/staging",
		ProjectID: &f.project.ID,
		Actor:     "bob",
	})

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeny, decision.Kind)
	assert.Equal(t, domain.GateBackupExists, decision.Gate)

	// No waiver was recorded for the denied attempt
	_, entries, err := f.service.EmergencyStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEmergency_NeverWaivesCritical(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()
	f.recordBackup(t, time.Hour)
	_, err := f.service.OpenEmergency(ctx, "alice", "sev1", time.Hour, f.adminCredential(t))
	require.NoError(t, err)

	// Test
	decision, err := f.service.Authorize(ctx, Request{
		Operation: domain.OpDatabaseDrop,
		Target:    "shop-staging-db",
		ProjectID: &f.project.ID,
		Actor:     "bob",
	})

	// Assertions
	require.NoError(t, err)
	require.Equal(t, domain.DecisionNeedsConfirmation, decision.Kind)
	assert.Equal(t, domain.GateAdminApproval, decision.Gate)

	_, entries, err := f.service.EmergencyStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCloseEmergency(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()
	_, err := f.service.OpenEmergency(ctx, "alice", "sev1", time.Hour, f.adminCredential(t))
	require.NoError(t, err)

	// Test
	closed, err := f.service.CloseEmergency(ctx, "alice")

	// Assertions
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)

	window, _, err := f.service.EmergencyStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, window)

	// Gates apply again immediately
	decision, err := f.service.Authorize(ctx, Request{
		Operation: domain.OpContainerStop,
		Target:    "shop/staging",
		Actor:     "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionNeedsConfirmation, decision.Kind)

	_, err = f.service.CloseEmergency(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCloseExpired_SweepsStaleWindows(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()

	window, err := f.store.EmergencyWindows.Create(&domain.EmergencyWindow{
		ID:        uuid.New(),
		Actor:     "alice",
		Reason:    "drill",
		OpenedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	// Test
	n, err := f.service.CloseExpired(ctx)

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reloaded, err := f.store.EmergencyWindows.FindByID(window.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ClosedAt)

	entries, err := f.store.EmergencyLog.ListByWindowID(window.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "expired", entries[0].Note)
}

func TestEmergency_ExpiredWindowStopsWaiving(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()

	// Open but past its expiry; the sweeper has not run yet
	_, err := f.store.EmergencyWindows.Create(&domain.EmergencyWindow{
		ID:        uuid.New(),
		Actor:     "alice",
		Reason:    "drill",
		OpenedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	// Test
	decision, err := f.service.Authorize(ctx, Request{
		Operation: domain.OpContainerStop,
		Target:    "shop/staging",
		Actor:     "bob",
	})

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionNeedsConfirmation, decision.Kind)
}

func TestEmergencyStatus_NoneOpen(t *testing.T) {
	f := setupProtection(t)

	// Test
	window, entries, err := f.service.EmergencyStatus(context.Background())

	// Assertions
	require.NoError(t, err)
	assert.Nil(t, window)
	assert.Nil(t, entries)
}

func TestListEmergencyWindows(t *testing.T) {
	f := setupProtection(t)
	ctx := context.Background()

	_, err := f.store.EmergencyWindows.Create(&domain.EmergencyWindow{
		ID:        uuid.New(),
		Actor:     "alice",
		Reason:    "old drill",
		OpenedAt:  time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-47 * time.Hour),
	})
	require.NoError(t, err)
	_, err = f.service.OpenEmergency(ctx, "bob", "sev1", time.Hour, f.adminCredential(t))
	require.NoError(t, err)

	// Test
	windows, err := f.service.ListEmergencyWindows(ctx, 10)

	// Assertions
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, "bob", windows[0].Actor) // newest first
}
