package repository

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/domain"
	"gorm.io/gorm"
)

type PortAllocationRepository interface {
	FindByEnvAndRole(environmentID uuid.UUID, role domain.PortRole) (*domain.PortAllocation, error)
	FindByPort(port int) (*domain.PortAllocation, error)
	ListPortsInRange(start, end int) ([]int, error)
	ListByProjectID(projectID uuid.UUID) ([]*domain.PortAllocation, error)
	List() ([]*domain.PortAllocation, error)
	Create(alloc *domain.PortAllocation) (*domain.PortAllocation, error)
	DeleteByEnvironmentID(environmentID uuid.UUID) error
	Delete(id uuid.UUID) error
}

type portAllocationRepository struct {
	db     *gorm.DB
	mapper *PortAllocationMapper
}

func (r *portAllocationRepository) FindByEnvAndRole(environmentID uuid.UUID, role domain.PortRole) (*domain.PortAllocation, error) {
	var m db.PortAllocationModel
	if err := r.db.Where("environment_id = ? AND role = ?", environmentID, role.String()).First(&m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *portAllocationRepository) FindByPort(port int) (*domain.PortAllocation, error) {
	var m db.PortAllocationModel
	if err := r.db.Where("port = ?", port).First(&m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

// ListPortsInRange returns the reserved ports within [start, end] in
// ascending order.
func (r *portAllocationRepository) ListPortsInRange(start, end int) ([]int, error) {
	var ports []int
	err := r.db.Model(&db.PortAllocationModel{}).
		Where("port BETWEEN ? AND ?", start, end).
		Order("port").
		Pluck("port", &ports).
		Error
	if err != nil {
		return nil, err
	}
	return ports, nil
}

func (r *portAllocationRepository) ListByProjectID(projectID uuid.UUID) ([]*domain.PortAllocation, error) {
	var models []db.PortAllocationModel
	if err := r.db.Where("project_id = ?", projectID).Order("port").Find(&models).Error; err != nil {
		return nil, err
	}

	allocs := make([]*domain.PortAllocation, len(models))
	for i, m := range models {
		allocs[i] = r.mapper.ToDomain(&m)
	}
	return allocs, nil
}

func (r *portAllocationRepository) List() ([]*domain.PortAllocation, error) {
	var models []db.PortAllocationModel
	if err := r.db.Order("port").Find(&models).Error; err != nil {
		return nil, err
	}

	allocs := make([]*domain.PortAllocation, len(models))
	for i, m := range models {
		allocs[i] = r.mapper.ToDomain(&m)
	}
	return allocs, nil
}

func (r *portAllocationRepository) Create(alloc *domain.PortAllocation) (*domain.PortAllocation, error) {
	m := r.mapper.ToModel(alloc)
	if err := r.db.Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_port_allocation",
			"port", alloc.Port,
			"environment_id", alloc.EnvironmentID,
			"error", err)
		return nil, err // Pass through as-is, caller inspects unique violations
	}
	return r.mapper.ToDomain(m), nil
}

func (r *portAllocationRepository) DeleteByEnvironmentID(environmentID uuid.UUID) error {
	return r.db.Where("environment_id = ?", environmentID).Delete(&db.PortAllocationModel{}).Error
}

func (r *portAllocationRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&db.PortAllocationModel{}, id).Error
}

func NewPortAllocationRepository(db *gorm.DB) PortAllocationRepository {
	return &portAllocationRepository{
		db:     db,
		mapper: &PortAllocationMapper{},
	}
}

type DomainBindingRepository interface {
	FindByDomain(name string) (*domain.DomainBinding, error)
	ListByProjectID(projectID uuid.UUID) ([]*domain.DomainBinding, error)
	List() ([]*domain.DomainBinding, error)
	Create(binding *domain.DomainBinding) (*domain.DomainBinding, error)
	DeleteByProjectID(projectID uuid.UUID) error
	Delete(id uuid.UUID) error
}

type domainBindingRepository struct {
	db     *gorm.DB
	mapper *DomainBindingMapper
}

func (r *domainBindingRepository) FindByDomain(name string) (*domain.DomainBinding, error) {
	var m db.DomainBindingModel
	if err := r.db.Where("domain = ?", name).First(&m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *domainBindingRepository) ListByProjectID(projectID uuid.UUID) ([]*domain.DomainBinding, error) {
	var models []db.DomainBindingModel
	if err := r.db.Where("project_id = ?", projectID).Order("domain").Find(&models).Error; err != nil {
		return nil, err
	}

	bindings := make([]*domain.DomainBinding, len(models))
	for i, m := range models {
		bindings[i] = r.mapper.ToDomain(&m)
	}
	return bindings, nil
}

func (r *domainBindingRepository) List() ([]*domain.DomainBinding, error) {
	var models []db.DomainBindingModel
	if err := r.db.Order("domain").Find(&models).Error; err != nil {
		return nil, err
	}

	bindings := make([]*domain.DomainBinding, len(models))
	for i, m := range models {
		bindings[i] = r.mapper.ToDomain(&m)
	}
	return bindings, nil
}

func (r *domainBindingRepository) Create(binding *domain.DomainBinding) (*domain.DomainBinding, error) {
	m := r.mapper.ToModel(binding)
	if err := r.db.Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_domain_binding",
			"domain", binding.Domain,
			"project_id", binding.ProjectID,
			"error", err)
		return nil, err
	}
	return r.mapper.ToDomain(m), nil
}

func (r *domainBindingRepository) DeleteByProjectID(projectID uuid.UUID) error {
	return r.db.Where("project_id = ?", projectID).Delete(&db.DomainBindingModel{}).Error
}

func (r *domainBindingRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&db.DomainBindingModel{}, id).Error
}

func NewDomainBindingRepository(db *gorm.DB) DomainBindingRepository {
	return &domainBindingRepository{
		db:     db,
		mapper: &DomainBindingMapper{},
	}
}

// ChangeHistoryRepository is append-only: entries are created inside the
// mutating transaction and never updated or deleted afterwards.
type ChangeHistoryRepository interface {
	Create(entry *domain.ChangeHistoryEntry) error
	List(limit int) ([]*domain.ChangeHistoryEntry, error)
	ListByProjectID(projectID uuid.UUID, limit int) ([]*domain.ChangeHistoryEntry, error)
}

type changeHistoryRepository struct {
	db     *gorm.DB
	mapper *ChangeHistoryMapper
}

func (r *changeHistoryRepository) Create(entry *domain.ChangeHistoryEntry) error {
	m := r.mapper.ToModel(entry)
	if err := r.db.Create(m).Error; err != nil {
		return err
	}
	// Update the domain object with the timestamps that GORM populated
	*entry = *r.mapper.ToDomain(m)
	return nil
}

func (r *changeHistoryRepository) List(limit int) ([]*domain.ChangeHistoryEntry, error) {
	var models []db.ChangeHistoryModel
	q := r.db.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	entries := make([]*domain.ChangeHistoryEntry, len(models))
	for i, m := range models {
		entries[i] = r.mapper.ToDomain(&m)
	}
	return entries, nil
}

func (r *changeHistoryRepository) ListByProjectID(projectID uuid.UUID, limit int) ([]*domain.ChangeHistoryEntry, error) {
	var models []db.ChangeHistoryModel
	q := r.db.Where("project_id = ?", projectID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	entries := make([]*domain.ChangeHistoryEntry, len(models))
	for i, m := range models {
		entries[i] = r.mapper.ToDomain(&m)
	}
	return entries, nil
}

func NewChangeHistoryRepository(db *gorm.DB) ChangeHistoryRepository {
	return &changeHistoryRepository{
		db:     db,
		mapper: &ChangeHistoryMapper{},
	}
}
