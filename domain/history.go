package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChangeHistoryEntry is one append-only audit record. Every successful
// registry mutation appends exactly one entry, atomically with the
// mutation; entries are never updated or deleted.
type ChangeHistoryEntry struct {
	ID          uuid.UUID
	Actor       string
	Operation   OperationKind
	ProjectID   *uuid.UUID
	Environment *EnvironmentClass
	Before      *string // JSON snapshot before the mutation, when meaningful
	After       *string // JSON snapshot after the mutation
	Details     string
	CreatedAt   time.Time
}

func NewChangeHistoryEntry(actor string, operation OperationKind) ChangeHistoryEntry {
	return ChangeHistoryEntry{
		ID:        uuid.New(),
		Actor:     actor,
		Operation: operation,
	}
}
