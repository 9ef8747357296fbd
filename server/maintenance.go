package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/protection"
)

const defaultHistoryLimit = 50

func (s *Server) handleValidateRegistry(w http.ResponseWriter, r *http.Request) {
	issues, err := s.registry.Validate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]issueResponse, 0, len(issues))
	for _, issue := range issues {
		views = append(views, issueView(issue))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     len(issues) == 0,
		"issues": views,
	})
}

func (s *Server) handleSyncRegistry(w http.ResponseWriter, r *http.Request) {
	var body syncRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	ticketID := parseTicketID(body.TicketID)
	if body.Apply {
		err := s.protection.Require(r.Context(), protection.Request{
			Operation: domain.OpRegistrySync,
			Target:    "registry",
			Actor:     body.Actor,
			TicketID:  ticketID,
		})
		if err != nil {
			writeError(w, err)
			return
		}
	}

	changes, err := s.syncer.Sync(r.Context(), body.Actor, !body.Apply)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.Apply {
		s.consumeTicket(r.Context(), ticketID)
	}

	views := make([]changeResponse, 0, len(changes))
	for _, change := range changes {
		views = append(views, changeView(change))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dry_run": !body.Apply,
		"changes": views,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, domain.NewValidationError("invalid limit: %q", raw))
			return
		}
		limit = parsed
	}

	var projectID *uuid.UUID
	if name := r.URL.Query().Get("project"); name != "" {
		project, err := s.registry.FindProjectByName(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		projectID = &project.ID
	}

	entries, err := s.registry.History(r.Context(), projectID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]historyEntryResponse, 0, len(entries))
	for _, entry := range entries {
		views = append(views, historyEntryView(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}

func (s *Server) handleRecordBackup(w http.ResponseWriter, r *http.Request) {
	var body recordBackupRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	project, err := s.registry.FindProjectByName(r.Context(), body.Project)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.protection.Require(r.Context(), protection.Request{
		Operation: domain.OpBackupRecord,
		Target:    project.Name,
		ProjectID: &project.ID,
		Actor:     body.Actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	verified := true
	if body.Verified != nil {
		verified = *body.Verified
	}
	takenAt := time.Now()
	if body.TakenAt != nil {
		takenAt = *body.TakenAt
	}

	record, err := s.backups.Record(r.Context(), body.Actor, project.ID, body.Location, verified, takenAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, backupView(record))
}
