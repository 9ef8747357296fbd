package protection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rudder-cd/rudder/backup"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/repository"
	"github.com/rudder-cd/rudder/token"
	"gorm.io/gorm"
)

// Config holds the protection layer's timing knobs.
type Config struct {
	TicketTTL        time.Duration // pending ticket lifetime
	CooldownHigh     time.Duration // re-confirmation cooldown for HIGH operations
	CooldownCritical time.Duration // longer cooldown for CRITICAL operations
	MaxEmergency     time.Duration // upper bound on one emergency window
}

func DefaultConfig() Config {
	return Config{
		TicketTTL:        10 * time.Minute,
		CooldownHigh:     4 * time.Hour,
		CooldownCritical: 24 * time.Hour,
		MaxEmergency:     2 * time.Hour,
	}
}

// Request describes one intended operation presented for authorization.
// Target uses the "project/environment" form for environment-scoped
// operations and a bare resource name otherwise.
type Request struct {
	Operation domain.OperationKind
	Target    string
	ProjectID *uuid.UUID // set when the operation concerns a registered project
	Actor     string
	TicketID  *uuid.UUID // previously minted ticket being resubmitted
}

// Service evaluates protection gates for requested operations and manages
// the confirmation ticket and emergency window lifecycles.
type Service struct {
	store    *repository.Store
	tokens   *token.Service
	verifier *backup.Verifier
	bus      *events.Bus
	cfg      Config
}

func NewService(store *repository.Store, tokens *token.Service, verifier *backup.Verifier, bus *events.Bus, cfg Config) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		verifier: verifier,
		bus:      bus,
		cfg:      cfg,
	}
}

// Authorize classifies the requested operation and evaluates its gates in
// the fixed order backup, confirmation, cooldown, approval. The first
// unmet gate alone determines the outcome, so the caller always sees the
// single next blocking requirement. Authorize never consumes a ticket;
// the guarded execution does that once it succeeds.
func (s *Service) Authorize(ctx context.Context, req Request) (*domain.Decision, error) {
	if strings.TrimSpace(req.Actor) == "" {
		return nil, domain.NewValidationError("actor is required")
	}

	rule, err := RuleFor(req.Operation, req.Target)
	if err != nil {
		return nil, err
	}

	if len(rule.Requires) == 0 {
		if rule.Level == domain.DangerLow {
			slog.Info("operation allowed",
				"layer", "protection",
				"operation", req.Operation.String(),
				"target", req.Target,
				"level", rule.Level.String())
		}
		return &domain.Decision{Kind: domain.DecisionAllow, Level: rule.Level}, nil
	}

	window := s.activeWaiver(rule.Level)

	for _, gate := range rule.Requires {
		if window != nil && waivable(gate) {
			if err := s.logWaiver(window, req, gate); err != nil {
				return nil, err
			}
			continue
		}
		decision, err := s.evaluateGate(ctx, gate, req, rule)
		if err != nil {
			return nil, err
		}
		if decision != nil {
			return decision, nil
		}
	}

	slog.Info("operation allowed",
		"layer", "protection",
		"operation", req.Operation.String(),
		"target", req.Target,
		"level", rule.Level.String())
	return &domain.Decision{Kind: domain.DecisionAllow, Level: rule.Level}, nil
}

// Require wraps Authorize for callers that want to proceed or fail: a
// NeedsConfirmation decision becomes a NeedsConfirmationError carrying the
// minted ticket, a Deny becomes a DeniedError naming the unmet gate.
func (s *Service) Require(ctx context.Context, req Request) error {
	decision, err := s.Authorize(ctx, req)
	if err != nil {
		return err
	}
	switch decision.Kind {
	case domain.DecisionAllow:
		return nil
	case domain.DecisionNeedsConfirmation:
		return &domain.NeedsConfirmationError{Ticket: decision.Ticket, Reason: decision.Reason}
	default:
		return &domain.DeniedError{
			Operation: req.Operation,
			Level:     decision.Level,
			Gate:      decision.Gate,
			Reason:    decision.Reason,
		}
	}
}

func (s *Service) evaluateGate(ctx context.Context, gate domain.GateKind, req Request, rule domain.ProtectionRule) (*domain.Decision, error) {
	switch gate {
	case domain.GateBackupExists:
		return s.checkBackup(ctx, req, rule)
	case domain.GateUserConfirmation:
		return s.checkConfirmation(req, rule, domain.ConfirmRoleUser, gate)
	case domain.GateAdminApproval:
		return s.checkConfirmation(req, rule, domain.ConfirmRoleAdmin, gate)
	case domain.GateCooldown:
		return s.checkCooldown(req, rule)
	default:
		return nil, domain.NewValidationError("unknown gate %q", string(gate))
	}
}

func (s *Service) checkBackup(ctx context.Context, req Request, rule domain.ProtectionRule) (*domain.Decision, error) {
	if req.ProjectID == nil {
		return s.deny(req, rule, domain.GateBackupExists, fmt.Sprintf(
			"%s on %s requires a verified backup, but the request names no project",
			req.Operation, req.Target)), nil
	}

	fresh, record, err := s.verifier.HasFreshBackup(ctx, *req.ProjectID, time.Now())
	if err != nil {
		return nil, err
	}
	if fresh {
		return nil, nil
	}
	if record == nil {
		return s.deny(req, rule, domain.GateBackupExists, fmt.Sprintf(
			"%s on %s requires a verified backup, and none is recorded for this project",
			req.Operation, req.Target)), nil
	}
	return s.deny(req, rule, domain.GateBackupExists, fmt.Sprintf(
		"%s on %s requires a fresh backup: the last verified one was taken %s ago",
		req.Operation, req.Target, time.Since(record.TakenAt).Round(time.Minute))), nil
}

// checkConfirmation resolves the confirmation and approval gates. Without
// a ticket it mints one; with a ticket it checks that the ticket matches
// the request and has been confirmed under the required role key.
func (s *Service) checkConfirmation(req Request, rule domain.ProtectionRule, role domain.ConfirmRole, gate domain.GateKind) (*domain.Decision, error) {
	if req.TicketID == nil {
		return s.mintTicket(req, rule, role, gate)
	}

	ticket, err := s.loadTicket(*req.TicketID)
	if err != nil {
		return nil, err
	}

	if ticket.Operation != req.Operation || ticket.Target != req.Target {
		return s.deny(req, rule, gate, fmt.Sprintf(
			"ticket %s was issued for %s on %s, not this operation",
			ticket.ID, ticket.Operation, ticket.Target)), nil
	}
	if ticket.RequiredRole != role {
		return s.deny(req, rule, gate, fmt.Sprintf(
			"ticket %s carries %s confirmation, but this operation needs %s",
			ticket.ID, ticket.RequiredRole, role)), nil
	}

	switch ticket.Status {
	case domain.TicketStatusPending:
		return &domain.Decision{
			Kind:   domain.DecisionNeedsConfirmation,
			Level:  rule.Level,
			Gate:   gate,
			Reason: fmt.Sprintf("ticket %s is still pending confirmation", ticket.ID),
			Ticket: ticket,
		}, nil
	case domain.TicketStatusExpired:
		return s.deny(req, rule, gate, fmt.Sprintf(
			"ticket %s expired at %s; re-request the operation",
			ticket.ID, ticket.ExpiresAt.Format(time.RFC3339))), nil
	case domain.TicketStatusCancelled:
		return s.deny(req, rule, gate, fmt.Sprintf("ticket %s was cancelled", ticket.ID)), nil
	case domain.TicketStatusConfirmed:
		if ticket.ConsumedAt != nil {
			return s.deny(req, rule, gate, fmt.Sprintf("ticket %s was already used", ticket.ID)), nil
		}
		if ticket.Expired(time.Now()) {
			return s.deny(req, rule, gate, fmt.Sprintf(
				"ticket %s expired before it was used; re-request the operation", ticket.ID)), nil
		}
		return nil, nil
	default:
		return s.deny(req, rule, gate, fmt.Sprintf("ticket %s is in an unknown state", ticket.ID)), nil
	}
}

func (s *Service) mintTicket(req Request, rule domain.ProtectionRule, role domain.ConfirmRole, gate domain.GateKind) (*domain.Decision, error) {
	ticket := &domain.ConfirmationTicket{
		ID:           uuid.New(),
		Operation:    req.Operation,
		Level:        rule.Level,
		ProjectID:    req.ProjectID,
		Target:       req.Target,
		Details:      rule.Message,
		RequiredRole: role,
		RequestedBy:  req.Actor,
		ExpiresAt:    time.Now().Add(s.cfg.TicketTTL),
		Status:       domain.TicketStatusPending,
	}

	confirmToken, err := s.tokens.Mint(role, ticket.ID, req.Operation, req.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to mint confirmation token: %w", err)
	}
	ticket.ConfirmToken = confirmToken

	created, err := s.store.Tickets.Create(ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to persist confirmation ticket: %w", err)
	}

	verb := "confirmation"
	if role == domain.ConfirmRoleAdmin {
		verb = "admin approval"
	}
	reason := fmt.Sprintf("%s on %s requires %s: %s", req.Operation, req.Target, verb, rule.Message)

	slog.Info("confirmation ticket minted",
		"layer", "protection",
		"operation", req.Operation.String(),
		"target", req.Target,
		"ticket_id", created.ID.String(),
		"role", string(role),
		"expires_at", created.ExpiresAt)
	s.publish(events.ProtectionQueued, req, reason)

	return &domain.Decision{
		Kind:   domain.DecisionNeedsConfirmation,
		Level:  rule.Level,
		Gate:   gate,
		Reason: reason,
		Ticket: created,
	}, nil
}

func (s *Service) checkCooldown(req Request, rule domain.ProtectionRule) (*domain.Decision, error) {
	window := s.cfg.CooldownHigh
	if rule.Level == domain.DangerCritical {
		window = s.cfg.CooldownCritical
	}

	last, err := s.store.Tickets.FindLatestSettled(req.Operation, req.Target)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(settledAt(last))
	if elapsed >= window {
		return nil, nil
	}
	return s.deny(req, rule, domain.GateCooldown, fmt.Sprintf(
		"cooldown active: a prior %s on %s settled %s ago, retry in %s",
		req.Operation, req.Target,
		elapsed.Round(time.Minute),
		(window-elapsed).Round(time.Minute))), nil
}

// settledAt anchors the cooldown window: the consumption time for used
// tickets, the cancellation time otherwise.
func settledAt(t *domain.ConfirmationTicket) time.Time {
	if t.ConsumedAt != nil {
		return *t.ConsumedAt
	}
	return t.UpdatedAt
}

func (s *Service) deny(req Request, rule domain.ProtectionRule, gate domain.GateKind, reason string) *domain.Decision {
	slog.Info("operation denied",
		"layer", "protection",
		"operation", req.Operation.String(),
		"target", req.Target,
		"gate", string(gate))
	s.publish(events.ProtectionDenied, req, reason)
	return &domain.Decision{Kind: domain.DecisionDeny, Level: rule.Level, Gate: gate, Reason: reason}
}

// ConfirmTicket marks a pending ticket confirmed after verifying the token
// against the required role's key. The caller then resubmits the operation
// with the ticket ID; the guarded execution consumes it exactly once.
func (s *Service) ConfirmTicket(ctx context.Context, id uuid.UUID, confirmToken string, role domain.ConfirmRole) (*domain.ConfirmationTicket, error) {
	ticket, err := s.loadTicket(id)
	if err != nil {
		return nil, err
	}

	switch ticket.Status {
	case domain.TicketStatusPending:
	case domain.TicketStatusExpired:
		return nil, domain.NewValidationError("ticket %s expired at %s; re-request the operation",
			id, ticket.ExpiresAt.Format(time.RFC3339))
	case domain.TicketStatusConfirmed:
		return nil, domain.NewValidationError("ticket %s is already confirmed", id)
	case domain.TicketStatusCancelled:
		return nil, domain.NewValidationError("ticket %s was cancelled", id)
	default:
		return nil, domain.NewValidationError("ticket %s is in an unknown state", id)
	}

	if role != ticket.RequiredRole {
		return nil, domain.NewValidationError("ticket %s requires %s confirmation", id, ticket.RequiredRole)
	}
	if err := s.tokens.Verify(role, confirmToken, ticket.ID); err != nil {
		gate := domain.GateUserConfirmation
		if ticket.RequiredRole == domain.ConfirmRoleAdmin {
			gate = domain.GateAdminApproval
		}
		return nil, &domain.DeniedError{
			Operation: ticket.Operation,
			Level:     ticket.Level,
			Gate:      gate,
			Reason:    fmt.Sprintf("confirmation rejected: %v", err),
		}
	}

	now := time.Now()
	ticket.Status = domain.TicketStatusConfirmed
	ticket.ConfirmedAt = &now
	if err := s.store.Tickets.Update(ticket); err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}

	slog.Info("ticket confirmed",
		"layer", "protection",
		"operation", ticket.Operation.String(),
		"target", ticket.Target,
		"ticket_id", ticket.ID.String())
	s.publish(events.ProtectionConfirmed, Request{Operation: ticket.Operation, Target: ticket.Target},
		fmt.Sprintf("ticket %s confirmed", ticket.ID))
	return ticket, nil
}

// CancelTicket cancels a pending ticket. Cancelled tickets still anchor
// the cooldown window for their operation and target.
func (s *Service) CancelTicket(ctx context.Context, id uuid.UUID) (*domain.ConfirmationTicket, error) {
	ticket, err := s.loadTicket(id)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusPending {
		return nil, domain.NewValidationError("only pending tickets can be cancelled; ticket %s is %s",
			id, ticket.Status)
	}

	ticket.Status = domain.TicketStatusCancelled
	if err := s.store.Tickets.Update(ticket); err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}

	slog.Info("ticket cancelled",
		"layer", "protection",
		"operation", ticket.Operation.String(),
		"target", ticket.Target,
		"ticket_id", ticket.ID.String())
	return ticket, nil
}

// Consume marks a confirmed ticket used. A ticket authorizes exactly one
// execution; a second consume fails.
func (s *Service) Consume(ctx context.Context, id uuid.UUID) error {
	ticket, err := s.loadTicket(id)
	if err != nil {
		return err
	}
	if ticket.ConsumedAt != nil {
		return domain.NewValidationError("ticket %s was already used", id)
	}
	if ticket.Status != domain.TicketStatusConfirmed {
		return domain.NewValidationError("ticket %s is not confirmed", id)
	}
	if ticket.Expired(time.Now()) {
		return domain.NewValidationError("ticket %s expired before it was used", id)
	}

	now := time.Now()
	ticket.ConsumedAt = &now
	if err := s.store.Tickets.Update(ticket); err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}

	slog.Info("ticket consumed",
		"layer", "protection",
		"operation", ticket.Operation.String(),
		"target", ticket.Target,
		"ticket_id", ticket.ID.String())
	return nil
}

// GetTicket loads a ticket, applying lazy expiry
func (s *Service) GetTicket(ctx context.Context, id uuid.UUID) (*domain.ConfirmationTicket, error) {
	return s.loadTicket(id)
}

// ListPending returns all pending tickets, newest first
func (s *Service) ListPending(ctx context.Context) ([]*domain.ConfirmationTicket, error) {
	return s.store.Tickets.ListPending()
}

// ExpireStale flips pending tickets past their TTL to expired. The watcher
// runs it periodically; reads also expire lazily, so a stopped watcher
// cannot leave a stale ticket usable.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.store.Tickets.ExpirePendingBefore(time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale tickets: %w", err)
	}
	if n > 0 {
		slog.Info("expired stale confirmation tickets", "layer", "protection", "count", n)
	}
	return n, nil
}

// loadTicket fetches a ticket and expires it in place when its TTL has
// elapsed while still pending.
func (s *Service) loadTicket(id uuid.UUID) (*domain.ConfirmationTicket, error) {
	ticket, err := s.store.Tickets.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	if ticket.Status == domain.TicketStatusPending && ticket.Expired(time.Now()) {
		ticket.Status = domain.TicketStatusExpired
		if err := s.store.Tickets.Update(ticket); err != nil {
			return nil, fmt.Errorf("failed to expire ticket: %w", err)
		}
	}
	return ticket, nil
}

func (s *Service) publish(eventType events.Type, req Request, details string) {
	if s.bus == nil {
		return
	}
	project, environment := splitTarget(req.Target)
	s.bus.Publish(events.Event{
		Type:        eventType,
		Project:     project,
		Environment: environment,
		Operation:   req.Operation.String(),
		Details:     details,
	})
}

// splitTarget extracts project and environment from a "project/env"
// target. Bare resource names map to project only.
func splitTarget(target string) (string, string) {
	project, environment, ok := strings.Cut(target, "/")
	if !ok {
		return target, ""
	}
	return project, environment
}
