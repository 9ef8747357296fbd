package domain

import "fmt"

// ProjectStatus represents the lifecycle status of a project
type ProjectStatus int

const (
	ProjectStatusUnknown ProjectStatus = iota
	ProjectStatusActive
	ProjectStatusArchived
	ProjectStatusDeleted
)

func (s ProjectStatus) String() string {
	switch s {
	case ProjectStatusActive:
		return "active"
	case ProjectStatusArchived:
		return "archived"
	case ProjectStatusDeleted:
		return "deleted"
	case ProjectStatusUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

func ParseProjectStatus(s string) (ProjectStatus, error) {
	switch s {
	case "active":
		return ProjectStatusActive, nil
	case "archived":
		return ProjectStatusArchived, nil
	case "deleted":
		return ProjectStatusDeleted, nil
	case "unknown":
		return ProjectStatusUnknown, nil
	default:
		return ProjectStatusUnknown, fmt.Errorf("invalid project status: %q", s)
	}
}

// SlotStatus represents the deployment status of a blue/green slot
type SlotStatus int

const (
	SlotStatusUnknown SlotStatus = iota
	SlotStatusIdle
	SlotStatusDeploying
	SlotStatusHealthy
	SlotStatusFailed
)

func (s SlotStatus) String() string {
	switch s {
	case SlotStatusIdle:
		return "idle"
	case SlotStatusDeploying:
		return "deploying"
	case SlotStatusHealthy:
		return "healthy"
	case SlotStatusFailed:
		return "failed"
	case SlotStatusUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

func ParseSlotStatus(s string) (SlotStatus, error) {
	switch s {
	case "idle":
		return SlotStatusIdle, nil
	case "deploying":
		return SlotStatusDeploying, nil
	case "healthy":
		return SlotStatusHealthy, nil
	case "failed":
		return SlotStatusFailed, nil
	case "unknown":
		return SlotStatusUnknown, nil
	default:
		return SlotStatusUnknown, fmt.Errorf("invalid slot status: %q", s)
	}
}

// TicketStatus represents the lifecycle state of a confirmation ticket
type TicketStatus int

const (
	TicketStatusUnknown TicketStatus = iota
	TicketStatusPending
	TicketStatusConfirmed
	TicketStatusExpired
	TicketStatusCancelled
)

func (s TicketStatus) String() string {
	switch s {
	case TicketStatusPending:
		return "pending"
	case TicketStatusConfirmed:
		return "confirmed"
	case TicketStatusExpired:
		return "expired"
	case TicketStatusCancelled:
		return "cancelled"
	case TicketStatusUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

func ParseTicketStatus(s string) (TicketStatus, error) {
	switch s {
	case "pending":
		return TicketStatusPending, nil
	case "confirmed":
		return TicketStatusConfirmed, nil
	case "expired":
		return TicketStatusExpired, nil
	case "cancelled":
		return TicketStatusCancelled, nil
	case "unknown":
		return TicketStatusUnknown, nil
	default:
		return TicketStatusUnknown, fmt.Errorf("invalid ticket status: %q", s)
	}
}
