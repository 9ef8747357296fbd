package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rudder-cd/rudder/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, ttl time.Duration) *Service {
	userKey, err := GenerateKey()
	require.NoError(t, err)
	adminKey, err := GenerateKey()
	require.NoError(t, err)

	svc, err := NewService(userKey, adminKey, ttl)
	require.NoError(t, err)
	return svc
}

func TestService_MintAndVerify(t *testing.T) {
	svc := newTestService(t, 10*time.Minute)
	ticketID := uuid.New()

	tok, err := svc.Mint(domain.ConfirmRoleUser, ticketID, domain.OpContainerStop, "shop/production")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	err = svc.Verify(domain.ConfirmRoleUser, tok, ticketID)
	assert.NoError(t, err)
}

func TestService_Verify_WrongRoleKey(t *testing.T) {
	svc := newTestService(t, 10*time.Minute)
	ticketID := uuid.New()

	// Minted with the user key, presented as an admin approval
	tok, err := svc.Mint(domain.ConfirmRoleUser, ticketID, domain.OpVolumeDelete, "shop-production-pgdata")
	require.NoError(t, err)

	err = svc.Verify(domain.ConfirmRoleAdmin, tok, ticketID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or expired")
}

func TestService_Verify_WrongTicket(t *testing.T) {
	svc := newTestService(t, 10*time.Minute)

	tok, err := svc.Mint(domain.ConfirmRoleUser, uuid.New(), domain.OpContainerStop, "shop/production")
	require.NoError(t, err)

	err = svc.Verify(domain.ConfirmRoleUser, tok, uuid.New())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "different ticket")
}

func TestService_Verify_Garbage(t *testing.T) {
	svc := newTestService(t, 10*time.Minute)

	err := svc.Verify(domain.ConfirmRoleUser, "not-a-token", uuid.New())
	assert.Error(t, err)
}

func TestNewService_InvalidKey(t *testing.T) {
	userKey, err := GenerateKey()
	require.NoError(t, err)

	_, err = NewService(userKey, "bogus", 10*time.Minute)
	assert.Error(t, err)

	_, err = NewService("", userKey, 10*time.Minute)
	assert.Error(t, err)
}

func TestGenerateKey_Distinct(t *testing.T) {
	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestService_MintAndVerifyCredential(t *testing.T) {
	service := newTestService(t, 10*time.Minute)

	credential, err := service.MintCredential(domain.ConfirmRoleAdmin, "emergency")
	require.NoError(t, err)

	// Test
	err = service.VerifyCredential(domain.ConfirmRoleAdmin, credential, "emergency")

	// Assertions
	assert.NoError(t, err)
}

func TestService_VerifyCredential_WrongPurpose(t *testing.T) {
	service := newTestService(t, 10*time.Minute)

	credential, err := service.MintCredential(domain.ConfirmRoleAdmin, "emergency")
	require.NoError(t, err)

	// Test
	err = service.VerifyCredential(domain.ConfirmRoleAdmin, credential, "keygen")

	// Assertions
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different purpose")
}

func TestService_VerifyCredential_WrongRoleKey(t *testing.T) {
	service := newTestService(t, 10*time.Minute)

	credential, err := service.MintCredential(domain.ConfirmRoleUser, "emergency")
	require.NoError(t, err)

	// Test: a user-key credential presented as an admin credential
	err = service.VerifyCredential(domain.ConfirmRoleAdmin, credential, "emergency")

	// Assertions
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or expired")
}
