// Package repository provides the data access layer over the registry database.
package repository

import (
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/domain"
)

type ProjectMapper struct{}

func (m *ProjectMapper) ToDomain(p *db.ProjectModel) *domain.Project {
	status, err := domain.ParseProjectStatus(p.Status)
	if err != nil {
		status = domain.ProjectStatusUnknown
	}

	return &domain.Project{
		ID:        p.ID,
		Name:      p.Name,
		Type:      domain.ProjectType(p.Type),
		GitRepo:   p.GitRepo,
		Status:    status,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (m *ProjectMapper) ToModel(p *domain.Project) *db.ProjectModel {
	return &db.ProjectModel{
		BaseModel: db.BaseModel{
			ID:        p.ID,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		},
		Name:    p.Name,
		Type:    p.Type.String(),
		GitRepo: p.GitRepo,
		Status:  p.Status.String(),
	}
}

type EnvironmentMapper struct{}

func (m *EnvironmentMapper) ToDomain(e *db.EnvironmentModel) *domain.Environment {
	return &domain.Environment{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Name:      domain.EnvironmentClass(e.Name),
		AppPort:   e.AppPort,
		DBPort:    e.DBPort,
		CachePort: e.CachePort,
		Domain:    e.Domain,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func (m *EnvironmentMapper) ToModel(e *domain.Environment) *db.EnvironmentModel {
	return &db.EnvironmentModel{
		BaseModel: db.BaseModel{
			ID:        e.ID,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		},
		ProjectID: e.ProjectID,
		Name:      e.Name.String(),
		AppPort:   e.AppPort,
		DBPort:    e.DBPort,
		CachePort: e.CachePort,
		Domain:    e.Domain,
	}
}

type PortAllocationMapper struct{}

func (m *PortAllocationMapper) ToDomain(a *db.PortAllocationModel) *domain.PortAllocation {
	return &domain.PortAllocation{
		ID:            a.ID,
		Port:          a.Port,
		Role:          domain.PortRole(a.Role),
		Class:         domain.EnvironmentClass(a.Class),
		ProjectID:     a.ProjectID,
		EnvironmentID: a.EnvironmentID,
		AllocatedAt:   a.CreatedAt,
	}
}

func (m *PortAllocationMapper) ToModel(a *domain.PortAllocation) *db.PortAllocationModel {
	return &db.PortAllocationModel{
		BaseModel: db.BaseModel{
			ID:        a.ID,
			CreatedAt: a.AllocatedAt,
		},
		Port:          a.Port,
		Role:          a.Role.String(),
		Class:         a.Class.String(),
		ProjectID:     a.ProjectID,
		EnvironmentID: a.EnvironmentID,
	}
}

type DomainBindingMapper struct{}

func (m *DomainBindingMapper) ToDomain(b *db.DomainBindingModel) *domain.DomainBinding {
	return &domain.DomainBinding{
		ID:          b.ID,
		Domain:      b.Domain,
		ProjectID:   b.ProjectID,
		Environment: domain.EnvironmentClass(b.Environment),
		CreatedAt:   b.CreatedAt,
	}
}

func (m *DomainBindingMapper) ToModel(b *domain.DomainBinding) *db.DomainBindingModel {
	return &db.DomainBindingModel{
		BaseModel: db.BaseModel{
			ID:        b.ID,
			CreatedAt: b.CreatedAt,
		},
		Domain:      b.Domain,
		ProjectID:   b.ProjectID,
		Environment: b.Environment.String(),
	}
}

type SlotMapper struct{}

func (m *SlotMapper) ToDomain(s *db.SlotModel) *domain.Slot {
	status, err := domain.ParseSlotStatus(s.Status)
	if err != nil {
		status = domain.SlotStatusUnknown
	}

	return &domain.Slot{
		ID:            s.ID,
		EnvironmentID: s.EnvironmentID,
		Name:          domain.SlotName(s.Name),
		ContainerID:   s.ContainerID,
		Image:         s.Image,
		Status:        status,
		IsActive:      s.IsActive,
		DeployedAt:    s.DeployedAt,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (m *SlotMapper) ToModel(s *domain.Slot) *db.SlotModel {
	return &db.SlotModel{
		BaseModel: db.BaseModel{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		},
		EnvironmentID: s.EnvironmentID,
		Name:          s.Name.String(),
		ContainerID:   s.ContainerID,
		Image:         s.Image,
		Status:        s.Status.String(),
		IsActive:      s.IsActive,
		DeployedAt:    s.DeployedAt,
	}
}

type ChangeHistoryMapper struct{}

func (m *ChangeHistoryMapper) ToDomain(e *db.ChangeHistoryModel) *domain.ChangeHistoryEntry {
	var env *domain.EnvironmentClass
	if e.Environment != nil {
		class := domain.EnvironmentClass(*e.Environment)
		env = &class
	}

	return &domain.ChangeHistoryEntry{
		ID:          e.ID,
		Actor:       e.Actor,
		Operation:   domain.OperationKind(e.Operation),
		ProjectID:   e.ProjectID,
		Environment: env,
		Before:      e.Before,
		After:       e.After,
		Details:     e.Details,
		CreatedAt:   e.CreatedAt,
	}
}

func (m *ChangeHistoryMapper) ToModel(e *domain.ChangeHistoryEntry) *db.ChangeHistoryModel {
	var env *string
	if e.Environment != nil {
		name := e.Environment.String()
		env = &name
	}

	return &db.ChangeHistoryModel{
		BaseModel: db.BaseModel{
			ID:        e.ID,
			CreatedAt: e.CreatedAt,
		},
		Actor:       e.Actor,
		Operation:   e.Operation.String(),
		ProjectID:   e.ProjectID,
		Environment: env,
		Before:      e.Before,
		After:       e.After,
		Details:     e.Details,
	}
}

type ConfirmationTicketMapper struct{}

func (m *ConfirmationTicketMapper) ToDomain(t *db.ConfirmationTicketModel) *domain.ConfirmationTicket {
	level, err := domain.ParseDangerLevel(t.Level)
	if err != nil {
		level = domain.DangerUnknown
	}
	status, err := domain.ParseTicketStatus(t.Status)
	if err != nil {
		status = domain.TicketStatusUnknown
	}

	return &domain.ConfirmationTicket{
		ID:           t.ID,
		Operation:    domain.OperationKind(t.Operation),
		Level:        level,
		ProjectID:    t.ProjectID,
		Target:       t.Target,
		Details:      t.Details,
		ConfirmToken: t.ConfirmToken,
		RequiredRole: domain.ConfirmRole(t.RequiredRole),
		RequestedBy:  t.RequestedBy,
		ExpiresAt:    t.ExpiresAt,
		Status:       status,
		ConfirmedAt:  t.ConfirmedAt,
		ConsumedAt:   t.ConsumedAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func (m *ConfirmationTicketMapper) ToModel(t *domain.ConfirmationTicket) *db.ConfirmationTicketModel {
	return &db.ConfirmationTicketModel{
		BaseModel: db.BaseModel{
			ID:        t.ID,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		},
		Operation:    t.Operation.String(),
		Level:        t.Level.String(),
		ProjectID:    t.ProjectID,
		Target:       t.Target,
		Details:      t.Details,
		ConfirmToken: t.ConfirmToken,
		RequiredRole: t.RequiredRole.String(),
		RequestedBy:  t.RequestedBy,
		ExpiresAt:    t.ExpiresAt,
		Status:       t.Status.String(),
		ConfirmedAt:  t.ConfirmedAt,
		ConsumedAt:   t.ConsumedAt,
	}
}

type EmergencyWindowMapper struct{}

func (m *EmergencyWindowMapper) ToDomain(w *db.EmergencyWindowModel) *domain.EmergencyWindow {
	return &domain.EmergencyWindow{
		ID:        w.ID,
		Actor:     w.Actor,
		Reason:    w.Reason,
		OpenedAt:  w.OpenedAt,
		ExpiresAt: w.ExpiresAt,
		ClosedAt:  w.ClosedAt,
	}
}

func (m *EmergencyWindowMapper) ToModel(w *domain.EmergencyWindow) *db.EmergencyWindowModel {
	return &db.EmergencyWindowModel{
		BaseModel: db.BaseModel{
			ID: w.ID,
		},
		Actor:     w.Actor,
		Reason:    w.Reason,
		OpenedAt:  w.OpenedAt,
		ExpiresAt: w.ExpiresAt,
		ClosedAt:  w.ClosedAt,
	}
}

type EmergencyLogMapper struct{}

func (m *EmergencyLogMapper) ToDomain(e *db.EmergencyLogModel) *domain.EmergencyLogEntry {
	var op *domain.OperationKind
	if e.Operation != nil {
		kind := domain.OperationKind(*e.Operation)
		op = &kind
	}

	return &domain.EmergencyLogEntry{
		ID:        e.ID,
		WindowID:  e.WindowID,
		Actor:     e.Actor,
		Operation: op,
		Note:      e.Note,
		CreatedAt: e.CreatedAt,
	}
}

func (m *EmergencyLogMapper) ToModel(e *domain.EmergencyLogEntry) *db.EmergencyLogModel {
	var op *string
	if e.Operation != nil {
		kind := e.Operation.String()
		op = &kind
	}

	return &db.EmergencyLogModel{
		BaseModel: db.BaseModel{
			ID:        e.ID,
			CreatedAt: e.CreatedAt,
		},
		WindowID:  e.WindowID,
		Actor:     e.Actor,
		Operation: op,
		Note:      e.Note,
	}
}

type BackupRecordMapper struct{}

func (m *BackupRecordMapper) ToDomain(b *db.BackupRecordModel) *domain.BackupRecord {
	return &domain.BackupRecord{
		ID:        b.ID,
		ProjectID: b.ProjectID,
		Location:  b.Location,
		Verified:  b.Verified,
		TakenAt:   b.TakenAt,
		CreatedAt: b.CreatedAt,
	}
}

func (m *BackupRecordMapper) ToModel(b *domain.BackupRecord) *db.BackupRecordModel {
	return &db.BackupRecordModel{
		BaseModel: db.BaseModel{
			ID:        b.ID,
			CreatedAt: b.CreatedAt,
		},
		ProjectID: b.ProjectID,
		Location:  b.Location,
		Verified:  b.Verified,
		TakenAt:   b.TakenAt,
	}
}
