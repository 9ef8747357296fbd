package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/protection"
)

// ticketIDParam resolves the {id} URL parameter to a ticket id.
func ticketIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.NewValidationError("invalid ticket id: %v", err)
	}
	return id, nil
}

// handleAuthorize runs a protection check without executing anything. The
// response is the decision itself, minted ticket included, so callers can
// see what an operation would require before attempting it.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var body authorizeRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	req := protection.Request{
		Operation: domain.OperationKind(body.Operation),
		Target:    body.Target,
		Actor:     body.Actor,
		TicketID:  parseTicketID(body.TicketID),
	}
	if body.Project != "" {
		project, err := s.registry.FindProjectByName(r.Context(), body.Project)
		if err != nil {
			writeError(w, err)
			return
		}
		req.ProjectID = &project.ID
	}

	decision, err := s.protection.Authorize(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionView(decision))
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.protection.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		views = append(views, ticketView(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": views})
}

func (s *Server) handleConfirmTicket(w http.ResponseWriter, r *http.Request) {
	id, err := ticketIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body confirmTicketRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	ticket, err := s.protection.ConfirmTicket(r.Context(), id, body.Token, domain.ConfirmRole(body.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketView(ticket))
}

func (s *Server) handleCancelTicket(w http.ResponseWriter, r *http.Request) {
	id, err := ticketIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ticket, err := s.protection.CancelTicket(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketView(ticket))
}

func (s *Server) handleEmergencyOpen(w http.ResponseWriter, r *http.Request) {
	var body emergencyOpenRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	duration := body.duration()
	if duration == 0 {
		duration = s.config.EmergencyMaxDuration
	}

	window, err := s.protection.OpenEmergency(r.Context(), body.Actor, body.Reason, duration, body.AdminToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, emergencyView(window))
}

func (s *Server) handleEmergencyClose(w http.ResponseWriter, r *http.Request) {
	var body actorRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	window, err := s.protection.CloseEmergency(r.Context(), body.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emergencyView(window))
}

func (s *Server) handleEmergencyStatus(w http.ResponseWriter, r *http.Request) {
	window, entries, err := s.protection.EmergencyStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if window == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}

	log := make([]emergencyLogResponse, 0, len(entries))
	for _, entry := range entries {
		log = append(log, emergencyLogView(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active": true,
		"window": emergencyView(window),
		"log":    log,
	})
}
