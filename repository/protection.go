package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/domain"
	"gorm.io/gorm"
)

type ConfirmationTicketRepository interface {
	FindByID(id uuid.UUID) (*domain.ConfirmationTicket, error)
	Create(ticket *domain.ConfirmationTicket) (*domain.ConfirmationTicket, error)
	Update(ticket *domain.ConfirmationTicket) error
	ListPending() ([]*domain.ConfirmationTicket, error)
	// FindLatestSettled returns the most recent ticket for the operation and
	// target that was either consumed or cancelled. Cooldown windows are
	// measured from settled tickets, so a cancelled attempt still counts.
	FindLatestSettled(operation domain.OperationKind, target string) (*domain.ConfirmationTicket, error)
	ExpirePendingBefore(now time.Time) (int64, error)
}

type confirmationTicketRepository struct {
	db     *gorm.DB
	mapper *ConfirmationTicketMapper
}

func (r *confirmationTicketRepository) FindByID(id uuid.UUID) (*domain.ConfirmationTicket, error) {
	var m db.ConfirmationTicketModel
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *confirmationTicketRepository) Create(ticket *domain.ConfirmationTicket) (*domain.ConfirmationTicket, error) {
	m := r.mapper.ToModel(ticket)
	if err := r.db.Create(m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(m), nil
}

func (r *confirmationTicketRepository) Update(ticket *domain.ConfirmationTicket) error {
	m := r.mapper.ToModel(ticket)
	return r.db.Model(&db.ConfirmationTicketModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("created_at").
		Updates(m).
		Error
}

func (r *confirmationTicketRepository) ListPending() ([]*domain.ConfirmationTicket, error) {
	var models []db.ConfirmationTicketModel
	err := r.db.Where("status = ?", domain.TicketStatusPending.String()).
		Order("created_at DESC").
		Find(&models).
		Error
	if err != nil {
		return nil, err
	}

	tickets := make([]*domain.ConfirmationTicket, len(models))
	for i, m := range models {
		tickets[i] = r.mapper.ToDomain(&m)
	}
	return tickets, nil
}

func (r *confirmationTicketRepository) FindLatestSettled(operation domain.OperationKind, target string) (*domain.ConfirmationTicket, error) {
	var m db.ConfirmationTicketModel
	err := r.db.Where("operation = ? AND target = ?", operation.String(), target).
		Where("consumed_at IS NOT NULL OR status = ?", domain.TicketStatusCancelled.String()).
		Order("created_at DESC").
		First(&m).
		Error
	if err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *confirmationTicketRepository) ExpirePendingBefore(now time.Time) (int64, error) {
	res := r.db.Model(&db.ConfirmationTicketModel{}).
		Where("status = ? AND expires_at <= ?", domain.TicketStatusPending.String(), now).
		Update("status", domain.TicketStatusExpired.String())
	return res.RowsAffected, res.Error
}

func NewConfirmationTicketRepository(db *gorm.DB) ConfirmationTicketRepository {
	return &confirmationTicketRepository{
		db:     db,
		mapper: &ConfirmationTicketMapper{},
	}
}

type EmergencyWindowRepository interface {
	FindByID(id uuid.UUID) (*domain.EmergencyWindow, error)
	FindActive(now time.Time) (*domain.EmergencyWindow, error)
	ListOpenExpired(now time.Time) ([]*domain.EmergencyWindow, error)
	Create(window *domain.EmergencyWindow) (*domain.EmergencyWindow, error)
	Update(window *domain.EmergencyWindow) error
	List(limit int) ([]*domain.EmergencyWindow, error)
}

type emergencyWindowRepository struct {
	db     *gorm.DB
	mapper *EmergencyWindowMapper
}

func (r *emergencyWindowRepository) FindByID(id uuid.UUID) (*domain.EmergencyWindow, error) {
	var m db.EmergencyWindowModel
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *emergencyWindowRepository) FindActive(now time.Time) (*domain.EmergencyWindow, error) {
	var m db.EmergencyWindowModel
	err := r.db.Where("closed_at IS NULL AND expires_at > ?", now).
		Order("opened_at DESC").
		First(&m).
		Error
	if err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *emergencyWindowRepository) ListOpenExpired(now time.Time) ([]*domain.EmergencyWindow, error) {
	var models []db.EmergencyWindowModel
	err := r.db.Where("closed_at IS NULL AND expires_at <= ?", now).
		Find(&models).
		Error
	if err != nil {
		return nil, err
	}

	windows := make([]*domain.EmergencyWindow, len(models))
	for i, m := range models {
		windows[i] = r.mapper.ToDomain(&m)
	}
	return windows, nil
}

func (r *emergencyWindowRepository) Create(window *domain.EmergencyWindow) (*domain.EmergencyWindow, error) {
	m := r.mapper.ToModel(window)
	if err := r.db.Create(m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(m), nil
}

func (r *emergencyWindowRepository) Update(window *domain.EmergencyWindow) error {
	m := r.mapper.ToModel(window)
	return r.db.Model(&db.EmergencyWindowModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("created_at").
		Updates(m).
		Error
}

func (r *emergencyWindowRepository) List(limit int) ([]*domain.EmergencyWindow, error) {
	var models []db.EmergencyWindowModel
	q := r.db.Order("opened_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	windows := make([]*domain.EmergencyWindow, len(models))
	for i, m := range models {
		windows[i] = r.mapper.ToDomain(&m)
	}
	return windows, nil
}

func NewEmergencyWindowRepository(db *gorm.DB) EmergencyWindowRepository {
	return &emergencyWindowRepository{
		db:     db,
		mapper: &EmergencyWindowMapper{},
	}
}

// EmergencyLogRepository is append-only like the change history, but kept
// in its own table so emergency use stays visible on its own.
type EmergencyLogRepository interface {
	Create(entry *domain.EmergencyLogEntry) error
	ListByWindowID(windowID uuid.UUID) ([]*domain.EmergencyLogEntry, error)
}

type emergencyLogRepository struct {
	db     *gorm.DB
	mapper *EmergencyLogMapper
}

func (r *emergencyLogRepository) Create(entry *domain.EmergencyLogEntry) error {
	m := r.mapper.ToModel(entry)
	if err := r.db.Create(m).Error; err != nil {
		return err
	}
	*entry = *r.mapper.ToDomain(m)
	return nil
}

func (r *emergencyLogRepository) ListByWindowID(windowID uuid.UUID) ([]*domain.EmergencyLogEntry, error) {
	var models []db.EmergencyLogModel
	if err := r.db.Where("window_id = ?", windowID).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}

	entries := make([]*domain.EmergencyLogEntry, len(models))
	for i, m := range models {
		entries[i] = r.mapper.ToDomain(&m)
	}
	return entries, nil
}

func NewEmergencyLogRepository(db *gorm.DB) EmergencyLogRepository {
	return &emergencyLogRepository{
		db:     db,
		mapper: &EmergencyLogMapper{},
	}
}

type BackupRecordRepository interface {
	Create(record *domain.BackupRecord) (*domain.BackupRecord, error)
	FindLatestVerified(projectID uuid.UUID) (*domain.BackupRecord, error)
	ListByProjectID(projectID uuid.UUID, limit int) ([]*domain.BackupRecord, error)
}

type backupRecordRepository struct {
	db     *gorm.DB
	mapper *BackupRecordMapper
}

func (r *backupRecordRepository) Create(record *domain.BackupRecord) (*domain.BackupRecord, error) {
	m := r.mapper.ToModel(record)
	if err := r.db.Create(m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(m), nil
}

func (r *backupRecordRepository) FindLatestVerified(projectID uuid.UUID) (*domain.BackupRecord, error) {
	var m db.BackupRecordModel
	err := r.db.Where("project_id = ? AND verified = ?", projectID, true).
		Order("taken_at DESC").
		First(&m).
		Error
	if err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *backupRecordRepository) ListByProjectID(projectID uuid.UUID, limit int) ([]*domain.BackupRecord, error) {
	var models []db.BackupRecordModel
	q := r.db.Where("project_id = ?", projectID).Order("taken_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	records := make([]*domain.BackupRecord, len(models))
	for i, m := range models {
		records[i] = r.mapper.ToDomain(&m)
	}
	return records, nil
}

func NewBackupRecordRepository(db *gorm.DB) BackupRecordRepository {
	return &backupRecordRepository{
		db:     db,
		mapper: &BackupRecordMapper{},
	}
}
