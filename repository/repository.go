package repository

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/domain"
	"gorm.io/gorm"
)

type ProjectRepository interface {
	FindByID(id uuid.UUID) (*domain.Project, error)
	FindByName(name string) (*domain.Project, error)
	Create(project *domain.Project) (*domain.Project, error)
	Update(project *domain.Project) error
	List() ([]*domain.Project, error)
	ListByStatus(status domain.ProjectStatus) ([]*domain.Project, error)
	Delete(id uuid.UUID) error
}

type projectRepository struct {
	db     *gorm.DB
	mapper *ProjectMapper
}

func (r *projectRepository) List() ([]*domain.Project, error) {
	var models []db.ProjectModel
	if err := r.db.Order("name").Find(&models).Error; err != nil {
		return nil, err
	}

	projects := make([]*domain.Project, len(models))
	for i, model := range models {
		projects[i] = r.mapper.ToDomain(&model)
	}
	return projects, nil
}

func (r *projectRepository) ListByStatus(status domain.ProjectStatus) ([]*domain.Project, error) {
	var models []db.ProjectModel
	if err := r.db.Where("status = ?", status.String()).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}

	projects := make([]*domain.Project, len(models))
	for i, model := range models {
		projects[i] = r.mapper.ToDomain(&model)
	}
	return projects, nil
}

func (r *projectRepository) FindByID(id uuid.UUID) (*domain.Project, error) {
	var m db.ProjectModel
	if err := r.db.First(&m, id).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "find_project",
			"project_id", id,
			"error", err)
		return nil, err // Pass through as-is
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *projectRepository) FindByName(name string) (*domain.Project, error) {
	var m db.ProjectModel
	if err := r.db.Where("name = ?", name).First(&m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *projectRepository) Create(project *domain.Project) (*domain.Project, error) {
	m := r.mapper.ToModel(project)
	res := r.db.Create(m)
	if res.Error != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_project",
			"project_id", project.ID,
			"project_name", project.Name,
			"error", res.Error)
		return nil, res.Error // Pass through as-is
	}
	return r.mapper.ToDomain(m), nil
}

func (r *projectRepository) Update(project *domain.Project) error {
	m := r.mapper.ToModel(project)

	// Select("*") updates all fields including zero values, so clearing a
	// field actually clears the row. CreatedAt is never touched after insert.
	return r.db.Model(&db.ProjectModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("created_at").
		Updates(m).
		Error
}

func (r *projectRepository) Delete(id uuid.UUID) error {
	err := r.db.Delete(&db.ProjectModel{}, id).Error
	if err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "delete_project",
			"project_id", id,
			"error", err)
	}
	return err // Pass through as-is
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{
		db:     db,
		mapper: &ProjectMapper{},
	}
}

type EnvironmentRepository interface {
	FindByID(id uuid.UUID) (*domain.Environment, error)
	FindByProjectAndName(projectID uuid.UUID, name domain.EnvironmentClass) (*domain.Environment, error)
	Create(env *domain.Environment) (*domain.Environment, error)
	Update(env *domain.Environment) error
	ListByProjectID(projectID uuid.UUID) ([]*domain.Environment, error)
	List() ([]*domain.Environment, error)
	Delete(id uuid.UUID) error
}

type environmentRepository struct {
	db     *gorm.DB
	mapper *EnvironmentMapper
}

func (r *environmentRepository) FindByID(id uuid.UUID) (*domain.Environment, error) {
	var m db.EnvironmentModel
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *environmentRepository) FindByProjectAndName(projectID uuid.UUID, name domain.EnvironmentClass) (*domain.Environment, error) {
	var m db.EnvironmentModel
	if err := r.db.Where("project_id = ? AND name = ?", projectID, name.String()).First(&m).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToDomain(&m), nil
}

func (r *environmentRepository) Create(env *domain.Environment) (*domain.Environment, error) {
	m := r.mapper.ToModel(env)
	if err := r.db.Create(m).Error; err != nil {
		slog.Error("Database operation failed",
			"layer", "repository",
			"operation", "create_environment",
			"project_id", env.ProjectID,
			"environment", env.Name,
			"error", err)
		return nil, err
	}
	return r.mapper.ToDomain(m), nil
}

func (r *environmentRepository) Update(env *domain.Environment) error {
	m := r.mapper.ToModel(env)
	return r.db.Model(&db.EnvironmentModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("created_at").
		Updates(m).
		Error
}

func (r *environmentRepository) ListByProjectID(projectID uuid.UUID) ([]*domain.Environment, error) {
	var models []db.EnvironmentModel
	if err := r.db.Where("project_id = ?", projectID).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}

	envs := make([]*domain.Environment, len(models))
	for i, m := range models {
		envs[i] = r.mapper.ToDomain(&m)
	}
	return envs, nil
}

func (r *environmentRepository) List() ([]*domain.Environment, error) {
	var models []db.EnvironmentModel
	if err := r.db.Find(&models).Error; err != nil {
		return nil, err
	}

	envs := make([]*domain.Environment, len(models))
	for i, m := range models {
		envs[i] = r.mapper.ToDomain(&m)
	}
	return envs, nil
}

func (r *environmentRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&db.EnvironmentModel{}, id).Error
}

func NewEnvironmentRepository(db *gorm.DB) EnvironmentRepository {
	return &environmentRepository{
		db:     db,
		mapper: &EnvironmentMapper{},
	}
}
