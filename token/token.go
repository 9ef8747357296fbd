// Package token mints and verifies the signed tokens that accompany
// confirmation tickets. User and admin confirmations are signed with
// separate keys, so an admin approval can never be forged with the user
// key.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/google/uuid"
	"github.com/rudder-cd/rudder/domain"
)

// Service signs and verifies confirmation tokens
type Service struct {
	userKey  *fernet.Key
	adminKey *fernet.Key
	ttl      time.Duration
}

// NewService creates a token service from the encoded user and admin keys
func NewService(userKey, adminKey string, ttl time.Duration) (*Service, error) {
	if userKey == "" || adminKey == "" {
		return nil, fmt.Errorf("token keys cannot be empty")
	}

	uk, err := fernet.DecodeKey(userKey)
	if err != nil {
		return nil, fmt.Errorf("invalid user token key: %w", err)
	}
	ak, err := fernet.DecodeKey(adminKey)
	if err != nil {
		return nil, fmt.Errorf("invalid admin token key: %w", err)
	}

	return &Service{userKey: uk, adminKey: ak, ttl: ttl}, nil
}

// payload is the signed content of a confirmation token. The ticket ID
// binds the token to exactly one ticket.
type payload struct {
	TicketID  string `json:"ticket_id"`
	Operation string `json:"operation"`
	Target    string `json:"target"`
}

// Mint signs a confirmation token for the given ticket with the key of
// the required role
func (s *Service) Mint(role domain.ConfirmRole, ticketID uuid.UUID, operation domain.OperationKind, target string) (string, error) {
	data, err := json.Marshal(payload{
		TicketID:  ticketID.String(),
		Operation: operation.String(),
		Target:    target,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize token payload: %w", err)
	}

	signed, err := fernet.EncryptAndSign(data, s.keyFor(role))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signed), nil
}

// Verify checks a token against the role key and the expected ticket.
// A token signed with the wrong role key, expired past the TTL, or
// minted for a different ticket is rejected.
func (s *Service) Verify(role domain.ConfirmRole, token string, ticketID uuid.UUID) error {
	tokenBytes, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("invalid token format: %w", err)
	}

	data := fernet.VerifyAndDecrypt(tokenBytes, s.ttl, []*fernet.Key{s.keyFor(role)})
	if data == nil {
		return fmt.Errorf("token invalid or expired")
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to deserialize token payload: %w", err)
	}
	if p.TicketID != ticketID.String() {
		return fmt.Errorf("token was minted for a different ticket")
	}
	return nil
}

// credentialPayload is the signed content of a purpose credential, used
// where an operation must prove key possession without a ticket (opening
// an emergency window)
type credentialPayload struct {
	Purpose string `json:"purpose"`
	Nonce   string `json:"nonce"`
}

// MintCredential signs a short-lived proof of key possession bound to one
// purpose
func (s *Service) MintCredential(role domain.ConfirmRole, purpose string) (string, error) {
	data, err := json.Marshal(credentialPayload{
		Purpose: purpose,
		Nonce:   uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize credential payload: %w", err)
	}

	signed, err := fernet.EncryptAndSign(data, s.keyFor(role))
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signed), nil
}

// VerifyCredential checks a purpose credential against the role key
func (s *Service) VerifyCredential(role domain.ConfirmRole, token, purpose string) error {
	tokenBytes, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("invalid credential format: %w", err)
	}

	data := fernet.VerifyAndDecrypt(tokenBytes, s.ttl, []*fernet.Key{s.keyFor(role)})
	if data == nil {
		return fmt.Errorf("credential invalid or expired")
	}

	var p credentialPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to deserialize credential payload: %w", err)
	}
	if p.Purpose != purpose {
		return fmt.Errorf("credential was minted for a different purpose")
	}
	return nil
}

func (s *Service) keyFor(role domain.ConfirmRole) *fernet.Key {
	if role == domain.ConfirmRoleAdmin {
		return s.adminKey
	}
	return s.userKey
}

// GenerateKey returns a new random key in encoded form, suitable for
// RUDDER_USER_TOKEN_KEY and RUDDER_ADMIN_TOKEN_KEY
func GenerateKey() (string, error) {
	var key fernet.Key
	if _, err := rand.Read(key[:]); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return key.Encode(), nil
}
