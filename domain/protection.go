package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProtectionRule is the static configuration for one operation kind: its
// danger level, the gates it must pass, and the message shown when gated.
type ProtectionRule struct {
	Operation       OperationKind
	Level           DangerLevel
	ProductionLevel DangerLevel // effective level when the target is a production environment; zero means no escalation
	Requires        []GateKind
	Message         string
}

// ConfirmationTicket represents a pending dangerous operation waiting for
// a human to confirm it. Tickets are durable, expire after a short TTL and
// are consumed exactly once.
type ConfirmationTicket struct {
	ID           uuid.UUID
	Operation    OperationKind
	Level        DangerLevel
	ProjectID    *uuid.UUID
	Target       string // operation target, e.g. "shop/production" or a volume name
	Details      string
	ConfirmToken string
	RequiredRole ConfirmRole
	RequestedBy  string
	ExpiresAt    time.Time
	Status       TicketStatus
	ConfirmedAt  *time.Time
	ConsumedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the ticket's TTL has elapsed at the given time
func (t *ConfirmationTicket) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Usable reports whether a confirmed ticket can still authorize its
// operation (confirmed and not yet consumed)
func (t *ConfirmationTicket) Usable() bool {
	return t.Status == TicketStatusConfirmed && t.ConsumedAt == nil
}

// DecisionKind is the outcome class of a protection authorization
type DecisionKind int

const (
	DecisionUnknown DecisionKind = iota
	DecisionAllow
	DecisionNeedsConfirmation
	DecisionDeny
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAllow:
		return "allow"
	case DecisionNeedsConfirmation:
		return "needs_confirmation"
	case DecisionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision is the protection layer's verdict for one requested operation.
// At most one unmet gate is reported: the first one in evaluation order.
type Decision struct {
	Kind   DecisionKind
	Level  DangerLevel
	Gate   GateKind // unmet gate for NeedsConfirmation/Deny
	Reason string
	Ticket *ConfirmationTicket
}

// EmergencyWindow is one bounded period during which confirmation and
// cooldown gates are relaxed. Windows auto-expire and are never reopened.
type EmergencyWindow struct {
	ID        uuid.UUID
	Actor     string
	Reason    string
	OpenedAt  time.Time
	ExpiresAt time.Time
	ClosedAt  *time.Time
}

// Active reports whether the window is open at the given time
func (w *EmergencyWindow) Active(now time.Time) bool {
	return w.ClosedAt == nil && now.Before(w.ExpiresAt)
}

// EmergencyLogEntry is one append-only record of emergency-mode use,
// kept separate from the regular change history.
type EmergencyLogEntry struct {
	ID        uuid.UUID
	WindowID  uuid.UUID
	Actor     string
	Operation *OperationKind
	Note      string
	CreatedAt time.Time
}

// BackupRecord registers one completed backup for a project. The
// backup_exists gate checks the most recent verified record against a
// freshness threshold.
type BackupRecord struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Location  string
	Verified  bool
	TakenAt   time.Time
	CreatedAt time.Time
}
