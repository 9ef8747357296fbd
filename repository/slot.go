package repository

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/domain"
	"gorm.io/gorm"
)

type SlotRepository interface {
	FindByID(id uuid.UUID) (*domain.Slot, error)
	FindByEnvAndName(environmentID uuid.UUID, name domain.SlotName) (*domain.Slot, error)
	FindActive(environmentID uuid.UUID) (*domain.Slot, error)
	ListByEnvironmentID(environmentID uuid.UUID) ([]*domain.Slot, error)
	List() ([]*domain.Slot, error)
	Create(slot *domain.Slot) (*domain.Slot, error)
	Update(slot *domain.Slot) error
}

type slotRepository struct {
	db     *gorm.DB
	mapper *SlotMapper
}

func (r *slotRepository) FindByID(id uuid.UUID) (*domain.Slot, error) {
	var m db.SlotModel
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *slotRepository) FindByEnvAndName(environmentID uuid.UUID, name domain.SlotName) (*domain.Slot, error) {
	var m db.SlotModel
	if err := r.db.Where("environment_id = ? AND name = ?", environmentID, name.String()).First(&m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *slotRepository) FindActive(environmentID uuid.UUID) (*domain.Slot, error) {
	var m db.SlotModel
	if err := r.db.Where("environment_id = ? AND is_active = ?", environmentID, true).First(&m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *slotRepository) ListByEnvironmentID(environmentID uuid.UUID) ([]*domain.Slot, error) {
	var models []db.SlotModel
	if err := r.db.Where("environment_id = ?", environmentID).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}

	slots := make([]*domain.Slot, len(models))
	for i, m := range models {
		slots[i] = r.mapper.ToDomain(&m)
	}
	return slots, nil
}

func (r *slotRepository) List() ([]*domain.Slot, error) {
	var models []db.SlotModel
	if err := r.db.Find(&models).Error; err != nil {
		return nil, err
	}

	slots := make([]*domain.Slot, len(models))
	for i, m := range models {
		slots[i] = r.mapper.ToDomain(&m)
	}
	return slots, nil
}

func (r *slotRepository) Create(slot *domain.Slot) (*domain.Slot, error) {
	m := r.mapper.ToModel(slot)
	if err := r.db.Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_slot",
			"environment_id", slot.EnvironmentID,
			"slot", slot.Name,
			"error", err)
		return nil, err
	}
	return r.mapper.ToDomain(m), nil
}

func (r *slotRepository) Update(slot *domain.Slot) error {
	m := r.mapper.ToModel(slot)
	return r.db.Model(&db.SlotModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("created_at").
		Updates(m).
		Error
}

func NewSlotRepository(db *gorm.DB) SlotRepository {
	return &slotRepository{
		db:     db,
		mapper: &SlotMapper{},
	}
}
