package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvironmentClass identifies which reserved resource class an environment
// draws its ports from
type EnvironmentClass string

const (
	EnvStaging    EnvironmentClass = "staging"
	EnvProduction EnvironmentClass = "production"
	EnvPreview    EnvironmentClass = "preview"
)

// String implements the Stringer interface
func (c EnvironmentClass) String() string {
	return string(c)
}

// IsValid checks if the EnvironmentClass is valid
func (c EnvironmentClass) IsValid() bool {
	switch c {
	case EnvStaging, EnvProduction, EnvPreview:
		return true
	default:
		return false
	}
}

// ParseEnvironmentClass parses a string into an EnvironmentClass
func ParseEnvironmentClass(s string) (EnvironmentClass, error) {
	class := EnvironmentClass(s)
	if !class.IsValid() {
		return "", fmt.Errorf("invalid environment: %s", s)
	}
	return class, nil
}

// PortRole identifies which service of a project a port is reserved for
type PortRole string

const (
	PortRoleApp   PortRole = "app"
	PortRoleDB    PortRole = "db"
	PortRoleCache PortRole = "cache"
)

// String implements the Stringer interface
func (r PortRole) String() string {
	return string(r)
}

// IsValid checks if the PortRole is valid
func (r PortRole) IsValid() bool {
	switch r {
	case PortRoleApp, PortRoleDB, PortRoleCache:
		return true
	default:
		return false
	}
}

// ParsePortRole parses a string into a PortRole
func ParsePortRole(s string) (PortRole, error) {
	role := PortRole(s)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid port role: %s", s)
	}
	return role, nil
}

// Environment is one deployable class (staging/production/preview) of a
// project. Unique per (project, name); its ports are unique cluster-wide.
type Environment struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Name      EnvironmentClass
	AppPort   int
	DBPort    *int
	CachePort *int
	Domain    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *Environment) DomainStr() string {
	if e.Domain == nil {
		return ""
	}
	return *e.Domain
}

// PortFor returns the port recorded on the environment row for a role,
// 0 when none is recorded
func (e *Environment) PortFor(role PortRole) int {
	switch role {
	case PortRoleApp:
		return e.AppPort
	case PortRoleDB:
		if e.DBPort != nil {
			return *e.DBPort
		}
	case PortRoleCache:
		if e.CachePort != nil {
			return *e.CachePort
		}
	}
	return 0
}

func NewEnvironment(projectID uuid.UUID, name EnvironmentClass) Environment {
	return Environment{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
	}
}
