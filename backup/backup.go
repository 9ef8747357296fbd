// Package backup tracks completed project backups. The protection layer
// consults it before destructive operations; external backup jobs register
// their results here.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/repository"
)

// Verifier answers whether a project has a usable backup
type Verifier struct {
	store     *repository.Store
	freshness time.Duration
}

// NewVerifier returns a verifier that accepts verified backups younger than
// the freshness threshold
func NewVerifier(store *repository.Store, freshness time.Duration) *Verifier {
	return &Verifier{
		store:     store,
		freshness: freshness,
	}
}

// MostRecentBackup returns the latest verified backup of the project
func (v *Verifier) MostRecentBackup(ctx context.Context, projectID uuid.UUID) (*domain.BackupRecord, error) {
	record, err := v.store.Backups.FindLatestVerified(projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("verified backup for project %s: %w", projectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up backups for project %s: %w", projectID, err)
	}
	return record, nil
}

// HasFreshBackup reports whether a verified backup younger than the
// freshness threshold exists. The record is returned either way so denial
// messages can say how stale the last one is.
func (v *Verifier) HasFreshBackup(ctx context.Context, projectID uuid.UUID, now time.Time) (bool, *domain.BackupRecord, error) {
	record, err := v.MostRecentBackup(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if now.Sub(record.TakenAt) > v.freshness {
		return false, record, nil
	}
	return true, record, nil
}

// Recorder registers completed backups
type Recorder struct {
	store *repository.Store
}

func NewRecorder(store *repository.Store) *Recorder {
	return &Recorder{store: store}
}

// Record stores one backup result together with its history entry. A zero
// takenAt means the backup finished just now.
func (r *Recorder) Record(ctx context.Context, actor string, projectID uuid.UUID, location string, verified bool, takenAt time.Time) (*domain.BackupRecord, error) {
	if location == "" {
		return nil, domain.NewValidationError("backup location cannot be empty")
	}
	if _, err := r.store.Projects.FindByID(projectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
		}
		return nil, err
	}
	if takenAt.IsZero() {
		takenAt = time.Now()
	}

	var created *domain.BackupRecord
	err := r.store.Transaction(func(tx *repository.Store) error {
		var err error
		created, err = tx.Backups.Create(&domain.BackupRecord{
			ID:        uuid.New(),
			ProjectID: projectID,
			Location:  location,
			Verified:  verified,
			TakenAt:   takenAt,
		})
		if err != nil {
			return err
		}
		entry := domain.NewChangeHistoryEntry(actor, domain.OpBackupRecord)
		entry.ProjectID = &projectID
		entry.Details = fmt.Sprintf("recorded backup at %s (verified=%t)", location, verified)
		return tx.History.Create(&entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record backup: %w", err)
	}

	slog.Info("Backup recorded",
		"layer", "backup",
		"project_id", projectID,
		"location", location,
		"verified", verified)
	return created, nil
}
