package domain

import (
	"time"

	"github.com/google/uuid"
)

// PortAllocation reserves one cluster-wide unique port for a (project,
// environment, role) triple. It lives and dies with its Environment.
type PortAllocation struct {
	ID            uuid.UUID
	Port          int
	Role          PortRole
	Class         EnvironmentClass
	ProjectID     uuid.UUID
	EnvironmentID uuid.UUID
	AllocatedAt   time.Time
}

// DomainBinding maps a public domain to at most one (project, environment)
// pair at any time.
type DomainBinding struct {
	ID          uuid.UUID
	Domain      string
	ProjectID   uuid.UUID
	Environment EnvironmentClass
	CreatedAt   time.Time
}
