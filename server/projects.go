package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/protection"
	"github.com/rudder-cd/rudder/registry"
)

// lookupProject resolves the {name} URL parameter to a registered project.
func (s *Server) lookupProject(r *http.Request) (*domain.Project, error) {
	name := chi.URLParam(r, "name")
	if name == "" {
		return nil, domain.NewValidationError("project name is required")
	}
	return s.registry.FindProjectByName(r.Context(), name)
}

// environmentParam resolves the {environment} URL parameter.
func environmentParam(r *http.Request) (domain.EnvironmentClass, error) {
	env, err := domain.ParseEnvironmentClass(chi.URLParam(r, "environment"))
	if err != nil {
		return "", domain.NewValidationError("%v", err)
	}
	return env, nil
}

// consumeTicket marks a resubmitted ticket used after its operation
// succeeded. A consume failure does not undo the operation.
func (s *Server) consumeTicket(ctx context.Context, ticketID *uuid.UUID) {
	if ticketID == nil {
		return
	}
	if err := s.protection.Consume(ctx, *ticketID); err != nil {
		slog.Error("Failed to consume confirmation ticket",
			"layer", "server",
			"operation", "consume_ticket",
			"ticket_id", *ticketID,
			"error", err)
	}
}

func (s *Server) handleRegisterProject(w http.ResponseWriter, r *http.Request) {
	var body registerProjectRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	projectType, err := domain.ParseProjectType(body.Type)
	if err != nil {
		writeError(w, domain.NewValidationError("%v", err))
		return
	}

	err = s.protection.Require(r.Context(), protection.Request{
		Operation: domain.OpProjectRegister,
		Target:    body.Name,
		Actor:     body.Actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	project, err := s.registry.RegisterProject(r.Context(), body.Actor, registry.ProjectConfig{
		Name:    body.Name,
		Type:    projectType,
		GitRepo: body.GitRepo,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, projectView(project))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	var filter *domain.ProjectStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseProjectStatus(raw)
		if err != nil {
			writeError(w, domain.NewValidationError("%v", err))
			return
		}
		filter = &status
	}

	projects, err := s.registry.ListProjects(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		views = append(views, projectView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": views})
}

func (s *Server) handleShowProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.lookupProject(r)
	if err != nil {
		writeError(w, err)
		return
	}

	environments, err := s.registry.ListEnvironments(r.Context(), project.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	allocations, err := s.registry.ListAllocations(r.Context(), project.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	bindings, err := s.registry.ListBindings(r.Context(), project.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	detail := projectDetailResponse{
		projectResponse: projectView(project),
		Environments:    make([]environmentResponse, 0, len(environments)),
		Allocations:     make([]allocationResponse, 0, len(allocations)),
		Bindings:        make([]bindingResponse, 0, len(bindings)),
	}
	for _, env := range environments {
		detail.Environments = append(detail.Environments, environmentView(env))
	}
	for _, alloc := range allocations {
		detail.Allocations = append(detail.Allocations, allocationView(alloc))
	}
	for _, binding := range bindings {
		detail.Bindings = append(detail.Bindings, bindingView(binding))
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleArchiveProject(w http.ResponseWriter, r *http.Request) {
	var body archiveProjectRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	project, err := s.lookupProject(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ticketID := parseTicketID(body.TicketID)
	err = s.protection.Require(r.Context(), protection.Request{
		Operation: domain.OpProjectArchive,
		Target:    project.Name,
		ProjectID: &project.ID,
		Actor:     body.Actor,
		TicketID:  ticketID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	archived, err := s.registry.ArchiveProject(r.Context(), body.Actor, project.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.consumeTicket(r.Context(), ticketID)

	writeJSON(w, http.StatusOK, projectView(archived))
}

func (s *Server) handleAllocatePort(w http.ResponseWriter, r *http.Request) {
	var body allocatePortRequest
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
	role, err := domain.ParsePortRole(body.Role)
	if err != nil {
		writeError(w, domain.NewValidationError("%v", err))
		return
	}

	err = s.protection.Require(r.Context(), protection.Request{
		Operation: domain.OpAllocatePort,
		Target:    project.Name + "/" + string(env),
		ProjectID: &project.ID,
		Actor:     body.Actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	allocation, err := s.registry.AllocatePort(r.Context(), body.Actor, project.ID, env, role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, allocationView(allocation))
}

func (s *Server) handleBindDomain(w http.ResponseWriter, r *http.Request) {
	var body bindDomainRequest
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

	ticketID := parseTicketID(body.TicketID)
	err = s.protection.Require(r.Context(), protection.Request{
		Operation: domain.OpBindDomain,
		Target:    project.Name + "/" + string(env),
		ProjectID: &project.ID,
		Actor:     body.Actor,
		TicketID:  ticketID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	binding, err := s.registry.BindDomain(r.Context(), body.Actor, body.Domain, project.ID, env)
	if err != nil {
		writeError(w, err)
		return
	}
	s.consumeTicket(r.Context(), ticketID)

	writeJSON(w, http.StatusCreated, bindingView(binding))
}
