package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotName identifies one of the two blue/green slots of an environment
type SlotName string

const (
	SlotBlue  SlotName = "blue"
	SlotGreen SlotName = "green"
)

// String implements the Stringer interface
func (n SlotName) String() string {
	return string(n)
}

// IsValid checks if the SlotName is valid
func (n SlotName) IsValid() bool {
	switch n {
	case SlotBlue, SlotGreen:
		return true
	default:
		return false
	}
}

// Other returns the opposite slot
func (n SlotName) Other() SlotName {
	if n == SlotBlue {
		return SlotGreen
	}
	return SlotBlue
}

// ParseSlotName parses a string into a SlotName
func ParseSlotName(s string) (SlotName, error) {
	name := SlotName(s)
	if !name.IsValid() {
		return "", fmt.Errorf("invalid slot name: %s", s)
	}
	return name, nil
}

// Slot is one of the two container instances of an environment. Exactly one
// slot per environment is active at steady state; the other holds the
// previous or next release.
type Slot struct {
	ID            uuid.UUID
	EnvironmentID uuid.UUID
	Name          SlotName
	ContainerID   *string
	Image         string
	Status        SlotStatus
	IsActive      bool
	DeployedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *Slot) ContainerIDStr() string {
	if s.ContainerID == nil {
		return ""
	}
	return *s.ContainerID
}

// Promotable reports whether the slot can receive traffic: a recorded
// container in healthy state.
func (s *Slot) Promotable() bool {
	return s.Status == SlotStatusHealthy && s.ContainerID != nil
}

func NewSlot(environmentID uuid.UUID, name SlotName) Slot {
	return Slot{
		ID:            uuid.New(),
		EnvironmentID: environmentID,
		Name:          name,
		Status:        SlotStatusIdle,
	}
}

// SlotResult is the transient outcome of a slot deploy.
type SlotResult struct {
	Project     string
	Environment EnvironmentClass
	Slot        SlotName
	Image       string
	Status      SlotStatus
	ContainerID *string
	URL         *string
}
