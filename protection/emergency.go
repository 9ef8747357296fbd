package protection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/repository"
	"gorm.io/gorm"
)

// EmergencyPurpose is the purpose an admin credential must be minted for
// to open an emergency window.
const EmergencyPurpose = "emergency"

// OpenEmergency opens a bounded window during which the confirmation and
// cooldown gates are waived for MEDIUM and HIGH operations. The caller
// authenticates with an admin credential minted for the emergency purpose;
// CRITICAL operations keep all of their gates regardless.
func (s *Service) OpenEmergency(ctx context.Context, actor, reason string, duration time.Duration, adminToken string) (*domain.EmergencyWindow, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, domain.NewValidationError("actor is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("a reason is required to open emergency mode")
	}
	if duration <= 0 {
		return nil, domain.NewValidationError("emergency duration must be positive")
	}
	if duration > s.cfg.MaxEmergency {
		return nil, domain.NewValidationError("emergency windows are capped at %s", s.cfg.MaxEmergency)
	}
	if err := s.tokens.VerifyCredential(domain.ConfirmRoleAdmin, adminToken, EmergencyPurpose); err != nil {
		return nil, &domain.DeniedError{
			Operation: domain.OpEmergencyOpen,
			Level:     domain.DangerHigh,
			Gate:      domain.GateAdminApproval,
			Reason:    fmt.Sprintf("emergency mode rejected: %v", err),
		}
	}

	now := time.Now()
	if existing, err := s.store.EmergencyWindows.FindActive(now); err == nil {
		return nil, domain.NewValidationError("an emergency window is already open until %s",
			existing.ExpiresAt.Format(time.RFC3339))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	window := &domain.EmergencyWindow{
		ID:        uuid.New(),
		Actor:     actor,
		Reason:    reason,
		OpenedAt:  now,
		ExpiresAt: now.Add(duration),
	}

	var created *domain.EmergencyWindow
	err := s.store.Transaction(func(tx *repository.Store) error {
		var err error
		created, err = tx.EmergencyWindows.Create(window)
		if err != nil {
			return err
		}
		op := domain.OpEmergencyOpen
		return tx.EmergencyLog.Create(&domain.EmergencyLogEntry{
			ID:        uuid.New(),
			WindowID:  created.ID,
			Actor:     actor,
			Operation: &op,
			Note:      fmt.Sprintf("opened for %s: %s", duration, reason),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open emergency window: %w", err)
	}

	slog.Warn("emergency mode opened",
		"layer", "protection",
		"actor", actor,
		"reason", reason,
		"expires_at", created.ExpiresAt)
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      events.EmergencyOpened,
			Operation: domain.OpEmergencyOpen.String(),
			Details:   reason,
		})
	}
	return created, nil
}

// CloseEmergency closes the open window before its expiry
func (s *Service) CloseEmergency(ctx context.Context, actor string) (*domain.EmergencyWindow, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, domain.NewValidationError("actor is required")
	}

	window, err := s.store.EmergencyWindows.FindActive(time.Now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no emergency window is open: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	window.ClosedAt = &now
	err = s.store.Transaction(func(tx *repository.Store) error {
		if err := tx.EmergencyWindows.Update(window); err != nil {
			return err
		}
		op := domain.OpEmergencyClose
		return tx.EmergencyLog.Create(&domain.EmergencyLogEntry{
			ID:        uuid.New(),
			WindowID:  window.ID,
			Actor:     actor,
			Operation: &op,
			Note:      "closed early",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close emergency window: %w", err)
	}

	slog.Info("emergency mode closed", "layer", "protection", "actor", actor)
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      events.EmergencyClosed,
			Operation: domain.OpEmergencyClose.String(),
			Details:   "closed by " + actor,
		})
	}
	return window, nil
}

// CloseExpired stamps ClosedAt on windows whose expiry has passed. Expired
// windows already stop waiving gates; the sweep makes the closure explicit
// in the log. Run by the watcher.
func (s *Service) CloseExpired(ctx context.Context) (int, error) {
	windows, err := s.store.EmergencyWindows.ListOpenExpired(time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired emergency windows: %w", err)
	}

	for i, window := range windows {
		closedAt := window.ExpiresAt
		window.ClosedAt = &closedAt
		err := s.store.Transaction(func(tx *repository.Store) error {
			if err := tx.EmergencyWindows.Update(window); err != nil {
				return err
			}
			op := domain.OpEmergencyClose
			return tx.EmergencyLog.Create(&domain.EmergencyLogEntry{
				ID:        uuid.New(),
				WindowID:  window.ID,
				Actor:     "system",
				Operation: &op,
				Note:      "expired",
			})
		})
		if err != nil {
			return i, fmt.Errorf("failed to close expired emergency window %s: %w", window.ID, err)
		}

		slog.Info("emergency window expired", "layer", "protection", "window_id", window.ID.String())
		if s.bus != nil {
			s.bus.Publish(events.Event{
				Type:      events.EmergencyClosed,
				Operation: domain.OpEmergencyClose.String(),
				Details:   "expired",
			})
		}
	}
	return len(windows), nil
}

// EmergencyStatus returns the active window and its log, or nil when no
// window is open.
func (s *Service) EmergencyStatus(ctx context.Context) (*domain.EmergencyWindow, []*domain.EmergencyLogEntry, error) {
	window, err := s.store.EmergencyWindows.FindActive(time.Now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.store.EmergencyLog.ListByWindowID(window.ID)
	if err != nil {
		return nil, nil, err
	}
	return window, entries, nil
}

// ListEmergencyWindows returns recent windows, open or closed, newest first
func (s *Service) ListEmergencyWindows(ctx context.Context, limit int) ([]*domain.EmergencyWindow, error) {
	return s.store.EmergencyWindows.List(limit)
}

// activeWaiver returns the open emergency window when the danger level is
// eligible for waivers. CRITICAL operations never qualify, and a lookup
// failure grants nothing.
func (s *Service) activeWaiver(level domain.DangerLevel) *domain.EmergencyWindow {
	if level != domain.DangerMedium && level != domain.DangerHigh {
		return nil
	}
	window, err := s.store.EmergencyWindows.FindActive(time.Now())
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("failed to check for an emergency window", "layer", "protection", "error", err)
		}
		return nil
	}
	return window
}

// waivable reports whether an open emergency window may skip the gate.
// Backup and admin approval are never waived.
func waivable(gate domain.GateKind) bool {
	return gate == domain.GateUserConfirmation || gate == domain.GateCooldown
}

// logWaiver appends the waiver to the emergency log. A waiver that cannot
// be logged is not granted.
func (s *Service) logWaiver(window *domain.EmergencyWindow, req Request, gate domain.GateKind) error {
	op := req.Operation
	entry := &domain.EmergencyLogEntry{
		ID:        uuid.New(),
		WindowID:  window.ID,
		Actor:     req.Actor,
		Operation: &op,
		Note:      fmt.Sprintf("waived %s for %s", gate, req.Target),
	}
	if err := s.store.EmergencyLog.Create(entry); err != nil {
		return fmt.Errorf("failed to append to the emergency log: %w", err)
	}

	slog.Warn("gate waived under emergency mode",
		"layer", "protection",
		"operation", op.String(),
		"target", req.Target,
		"gate", string(gate))
	return nil
}
