// Package db provides database models and utilities for Rudder.
package db

import (
	"time"

	"github.com/google/uuid"
)

type BaseModel struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MigrationModel records which manual migrations have been applied
type MigrationModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null;unique"`
	AppliedAt time.Time
}

func (MigrationModel) TableName() string {
	return "migrations"
}

type ProjectModel struct {
	BaseModel
	Name    string  `gorm:"not null;unique;check:name <> ''"`
	Type    string  `gorm:"not null;check:type <> ''"`   // nextjs, node, static
	GitRepo *string `gorm:"type:text"`                   // source repository, informational only
	Status  string  `gorm:"not null;check:status <> ''"` // active, archived, deleted

	Environments []EnvironmentModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (ProjectModel) TableName() string {
	return "projects"
}

type EnvironmentModel struct {
	BaseModel
	ProjectID uuid.UUID `gorm:"not null;uniqueIndex:idx_environments_project_name"`
	Name      string    `gorm:"not null;check:name <> '';uniqueIndex:idx_environments_project_name"` // staging, production, preview
	AppPort   int       `gorm:"not null"`
	DBPort    *int
	CachePort *int
	Domain    *string

	Project ProjectModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Slots   []SlotModel  `gorm:"foreignKey:EnvironmentID;constraint:OnDelete:CASCADE"`
}

func (EnvironmentModel) TableName() string {
	return "environments"
}

// PortAllocationModel reserves one port cluster-wide. The unique index on
// port is the registry's core invariant; the (environment, role) index
// makes re-allocation idempotent.
type PortAllocationModel struct {
	BaseModel
	Port          int       `gorm:"not null;uniqueIndex"`
	Role          string    `gorm:"not null;check:role <> '';uniqueIndex:idx_allocations_env_role"` // app, db, cache
	Class         string    `gorm:"not null;check:class <> ''"`                                     // staging, production, preview
	ProjectID     uuid.UUID `gorm:"not null;index"`
	EnvironmentID uuid.UUID `gorm:"not null;uniqueIndex:idx_allocations_env_role"`
}

func (PortAllocationModel) TableName() string {
	return "port_allocations"
}

type DomainBindingModel struct {
	BaseModel
	Domain      string    `gorm:"not null;unique;check:domain <> ''"`
	ProjectID   uuid.UUID `gorm:"not null;index"`
	Environment string    `gorm:"not null;check:environment <> ''"`
}

func (DomainBindingModel) TableName() string {
	return "domain_bindings"
}

type SlotModel struct {
	BaseModel
	EnvironmentID uuid.UUID `gorm:"not null;uniqueIndex:idx_slots_env_name"`
	Name          string    `gorm:"not null;check:name <> '';uniqueIndex:idx_slots_env_name"` // blue, green
	ContainerID   *string
	Image         string `gorm:"not null"`
	Status        string `gorm:"not null;check:status <> ''"` // idle, deploying, healthy, failed
	IsActive      bool   `gorm:"not null"`
	DeployedAt    *time.Time
}

func (SlotModel) TableName() string {
	return "slots"
}

// ChangeHistoryModel rows are append-only: created inside the mutating
// transaction, never updated or deleted.
type ChangeHistoryModel struct {
	BaseModel
	Actor       string     `gorm:"not null;check:actor <> ''"`
	Operation   string     `gorm:"not null;check:operation <> ''"`
	ProjectID   *uuid.UUID `gorm:"index"`
	Environment *string
	Before      *string `gorm:"type:text"`
	After       *string `gorm:"type:text"`
	Details     string  `gorm:"type:text"`
}

func (ChangeHistoryModel) TableName() string {
	return "change_history"
}

type ConfirmationTicketModel struct {
	BaseModel
	Operation    string `gorm:"not null;check:operation <> ''"`
	Level        string `gorm:"not null"`
	ProjectID    *uuid.UUID
	Target       string `gorm:"not null;index"`
	Details      string `gorm:"type:text"`
	ConfirmToken string `gorm:"not null"`
	RequiredRole string `gorm:"not null"` // user, admin
	RequestedBy  string `gorm:"not null"`
	ExpiresAt    time.Time
	Status       string `gorm:"not null;index"` // pending, confirmed, expired, cancelled
	ConfirmedAt  *time.Time
	ConsumedAt   *time.Time
}

func (ConfirmationTicketModel) TableName() string {
	return "confirmation_tickets"
}

type EmergencyWindowModel struct {
	BaseModel
	Actor     string `gorm:"not null;check:actor <> ''"`
	Reason    string `gorm:"not null;check:reason <> ''"`
	OpenedAt  time.Time
	ExpiresAt time.Time
	ClosedAt  *time.Time
}

func (EmergencyWindowModel) TableName() string {
	return "emergency_windows"
}

// EmergencyLogModel rows are append-only, separate from change_history.
type EmergencyLogModel struct {
	BaseModel
	WindowID  uuid.UUID `gorm:"not null;index"`
	Actor     string    `gorm:"not null"`
	Operation *string
	Note      string `gorm:"type:text"`
}

func (EmergencyLogModel) TableName() string {
	return "emergency_log"
}

type BackupRecordModel struct {
	BaseModel
	ProjectID uuid.UUID `gorm:"not null;index"`
	Location  string    `gorm:"not null"`
	Verified  bool      `gorm:"not null"`
	TakenAt   time.Time `gorm:"not null;index"`
}

func (BackupRecordModel) TableName() string {
	return "backup_records"
}
