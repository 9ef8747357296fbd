package server

import (
	"net/http"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/orchestrator"
)

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var body deployRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	req := orchestrator.DeployRequest{
		Actor:    body.Actor,
		Config:   body.Config.toDeployConfig(),
		TicketID: parseTicketID(body.TicketID),
	}

	if body.DryRun {
		plan, err := s.deployer.PlanDeploy(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, planView(plan))
		return
	}

	result, err := s.deployer.DeployProject(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deploymentView(result))
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var body promoteRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	project, err := s.lookupProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	env, err := environmentParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var slotName *domain.SlotName
	if body.Slot != "" {
		parsed, err := domain.ParseSlotName(body.Slot)
		if err != nil {
			writeError(w, domain.NewValidationError("%v", err))
			return
		}
		slotName = &parsed
	}

	promoted, err := s.slots.Promote(r.Context(), body.Actor, project.ID, env, slotName, parseTicketID(body.TicketID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slotRecordView(promoted))
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var body rollbackRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	project, err := s.lookupProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	env, err := environmentParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	restored, err := s.slots.Rollback(r.Context(), body.Actor, project.ID, env, parseTicketID(body.TicketID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slotRecordView(restored))
}

func (s *Server) handleSlotStatus(w http.ResponseWriter, r *http.Request) {
	project, err := s.lookupProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	env, err := environmentParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	views, err := s.slots.Status(r.Context(), project.ID, env)
	if err != nil {
		writeError(w, err)
		return
	}

	slots := make([]slotResponse, 0, len(views))
	for _, v := range views {
		slots = append(slots, slotStatusView(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}
