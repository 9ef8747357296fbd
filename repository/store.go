package repository

import "gorm.io/gorm"

// Store bundles all repositories over one database handle. Registry
// mutations that must land atomically (port allocation plus environment
// update plus history entry) run through Transaction, which hands the
// callback a Store bound to the transaction.
type Store struct {
	db *gorm.DB

	Projects         ProjectRepository
	Environments     EnvironmentRepository
	Allocations      PortAllocationRepository
	Domains          DomainBindingRepository
	Slots            SlotRepository
	History          ChangeHistoryRepository
	Tickets          ConfirmationTicketRepository
	EmergencyWindows EmergencyWindowRepository
	EmergencyLog     EmergencyLogRepository
	Backups          BackupRecordRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:               db,
		Projects:         NewProjectRepository(db),
		Environments:     NewEnvironmentRepository(db),
		Allocations:      NewPortAllocationRepository(db),
		Domains:          NewDomainBindingRepository(db),
		Slots:            NewSlotRepository(db),
		History:          NewChangeHistoryRepository(db),
		Tickets:          NewConfirmationTicketRepository(db),
		EmergencyWindows: NewEmergencyWindowRepository(db),
		EmergencyLog:     NewEmergencyLogRepository(db),
		Backups:          NewBackupRecordRepository(db),
	}
}

// Transaction runs fn inside a database transaction. Returning an error
// rolls everything back, including any history entries written by fn.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
