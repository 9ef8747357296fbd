package server

import (
	"time"

	"github.com/rudder-cd/rudder/config"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/registry"
	"github.com/rudder-cd/rudder/slot"
)

// View converters shape domain records into the JSON the API returns.
// IDs serialize as strings, enums through their String form.

type projectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	GitRepo   string    `json:"git_repo,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func projectView(p *domain.Project) projectResponse {
	return projectResponse{
		ID:        p.ID.String(),
		Name:      p.Name,
		Type:      p.Type.String(),
		GitRepo:   p.GitRepoStr(),
		Status:    p.Status.String(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type environmentResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AppPort   int    `json:"app_port,omitempty"`
	DBPort    *int   `json:"db_port,omitempty"`
	CachePort *int   `json:"cache_port,omitempty"`
	Domain    string `json:"domain,omitempty"`
	URL       string `json:"url,omitempty"`
}

func environmentView(e *domain.Environment) environmentResponse {
	view := environmentResponse{
		ID:        e.ID.String(),
		Name:      string(e.Name),
		AppPort:   e.AppPort,
		DBPort:    e.DBPort,
		CachePort: e.CachePort,
		Domain:    e.DomainStr(),
	}
	if e.Domain != nil {
		view.URL = config.PublicURL(*e.Domain)
	}
	return view
}

type allocationResponse struct {
	ID          string    `json:"id"`
	Port        int       `json:"port"`
	Role        string    `json:"role"`
	Environment string    `json:"environment"`
	AllocatedAt time.Time `json:"allocated_at"`
}

func allocationView(a *domain.PortAllocation) allocationResponse {
	return allocationResponse{
		ID:          a.ID.String(),
		Port:        a.Port,
		Role:        a.Role.String(),
		Environment: string(a.Class),
		AllocatedAt: a.AllocatedAt,
	}
}

type bindingResponse struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Environment string    `json:"environment"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

func bindingView(b *domain.DomainBinding) bindingResponse {
	return bindingResponse{
		ID:          b.ID.String(),
		Domain:      b.Domain,
		Environment: string(b.Environment),
		URL:         config.PublicURL(b.Domain),
		CreatedAt:   b.CreatedAt,
	}
}

type projectDetailResponse struct {
	projectResponse
	Environments []environmentResponse `json:"environments"`
	Allocations  []allocationResponse  `json:"allocations"`
	Bindings     []bindingResponse     `json:"bindings"`
}

type liveStateResponse struct {
	Running bool   `json:"running"`
	Status  string `json:"status,omitempty"`
	Health  string `json:"health,omitempty"`
}

type slotResponse struct {
	Name        string             `json:"name"`
	Image       string             `json:"image,omitempty"`
	Status      string             `json:"status"`
	Active      bool               `json:"active"`
	ContainerID string             `json:"container_id,omitempty"`
	DeployedAt  *time.Time         `json:"deployed_at,omitempty"`
	Live        *liveStateResponse `json:"live,omitempty"`
}

func slotRecordView(record *domain.Slot) slotResponse {
	return slotResponse{
		Name:        record.Name.String(),
		Image:       record.Image,
		Status:      record.Status.String(),
		Active:      record.IsActive,
		ContainerID: record.ContainerIDStr(),
		DeployedAt:  record.DeployedAt,
	}
}

func slotStatusView(v slot.SlotView) slotResponse {
	view := slotRecordView(v.Record)
	if v.Live != nil {
		view.Live = &liveStateResponse{
			Running: v.Live.Running,
			Status:  v.Live.Status,
			Health:  v.Live.Health,
		}
	}
	return view
}

type ticketResponse struct {
	ID           string     `json:"id"`
	Operation    string     `json:"operation"`
	Level        string     `json:"level"`
	Target       string     `json:"target"`
	Details      string     `json:"details,omitempty"`
	ConfirmToken string     `json:"confirm_token,omitempty"`
	RequiredRole string     `json:"required_role"`
	RequestedBy  string     `json:"requested_by"`
	Status       string     `json:"status"`
	ExpiresAt    time.Time  `json:"expires_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`
}

func ticketView(t *domain.ConfirmationTicket) ticketResponse {
	return ticketResponse{
		ID:           t.ID.String(),
		Operation:    t.Operation.String(),
		Level:        t.Level.String(),
		Target:       t.Target,
		Details:      t.Details,
		ConfirmToken: t.ConfirmToken,
		RequiredRole: t.RequiredRole.String(),
		RequestedBy:  t.RequestedBy,
		Status:       t.Status.String(),
		ExpiresAt:    t.ExpiresAt,
		ConfirmedAt:  t.ConfirmedAt,
		ConsumedAt:   t.ConsumedAt,
	}
}

type decisionResponse struct {
	Decision string          `json:"decision"`
	Level    string          `json:"level"`
	Gate     string          `json:"gate,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Ticket   *ticketResponse `json:"ticket,omitempty"`
}

func decisionView(d *domain.Decision) decisionResponse {
	view := decisionResponse{
		Decision: d.Kind.String(),
		Level:    d.Level.String(),
		Gate:     d.Gate.String(),
		Reason:   d.Reason,
	}
	if d.Ticket != nil {
		ticket := ticketView(d.Ticket)
		view.Ticket = &ticket
	}
	return view
}

type emergencyResponse struct {
	ID        string     `json:"id"`
	Actor     string     `json:"actor"`
	Reason    string     `json:"reason"`
	Active    bool       `json:"active"`
	OpenedAt  time.Time  `json:"opened_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func emergencyView(w *domain.EmergencyWindow) emergencyResponse {
	return emergencyResponse{
		ID:        w.ID.String(),
		Actor:     w.Actor,
		Reason:    w.Reason,
		Active:    w.Active(time.Now()),
		OpenedAt:  w.OpenedAt,
		ExpiresAt: w.ExpiresAt,
		ClosedAt:  w.ClosedAt,
	}
}

type emergencyLogResponse struct {
	Actor     string    `json:"actor"`
	Operation string    `json:"operation,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func emergencyLogView(e *domain.EmergencyLogEntry) emergencyLogResponse {
	view := emergencyLogResponse{
		Actor:     e.Actor,
		Note:      e.Note,
		CreatedAt: e.CreatedAt,
	}
	if e.Operation != nil {
		view.Operation = e.Operation.String()
	}
	return view
}

type serviceResultResponse struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	ContainerID string `json:"container_id,omitempty"`
	Error       string `json:"error,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

type deploymentResponse struct {
	Success     bool                    `json:"success"`
	Project     string                  `json:"project"`
	Environment string                  `json:"environment"`
	Slot        string                  `json:"slot,omitempty"`
	Services    []serviceResultResponse `json:"services"`
	PublicURL   string                  `json:"public_url,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	DurationMS  int64                   `json:"duration_ms"`
}

func deploymentView(res *domain.DeploymentResult) *deploymentResponse {
	if res == nil {
		return nil
	}
	view := &deploymentResponse{
		Success:     res.Success,
		Project:     res.Project,
		Environment: string(res.Environment),
		Slot:        res.Slot.String(),
		Services:    make([]serviceResultResponse, 0, len(res.Services)),
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		DurationMS:  res.Duration().Milliseconds(),
	}
	if res.PublicURL != nil {
		view.PublicURL = *res.PublicURL
	}
	for _, svc := range res.Services {
		item := serviceResultResponse{
			Name:       string(svc.Name),
			Status:     string(svc.Status),
			Error:      svc.Error,
			DurationMS: svc.Duration.Milliseconds(),
		}
		if svc.ContainerID != nil {
			item.ContainerID = *svc.ContainerID
		}
		view.Services = append(view.Services, item)
	}
	return view
}

type plannedActionResponse struct {
	Stage       int    `json:"stage"`
	Operation   string `json:"operation"`
	Description string `json:"description"`
}

type planResponse struct {
	Project     string                  `json:"project"`
	Environment string                  `json:"environment"`
	Actions     []plannedActionResponse `json:"actions"`
}

func planView(p *domain.DeploymentPlan) planResponse {
	view := planResponse{
		Project:     p.Project,
		Environment: string(p.Environment),
		Actions:     make([]plannedActionResponse, 0, len(p.Actions)),
	}
	for _, action := range p.Actions {
		view.Actions = append(view.Actions, plannedActionResponse{
			Stage:       action.Stage,
			Operation:   action.Operation.String(),
			Description: action.Description,
		})
	}
	return view
}

type changeResponse struct {
	Kind        string `json:"kind"`
	Project     string `json:"project"`
	Environment string `json:"environment"`
	Subject     string `json:"subject"`
	Detail      string `json:"detail,omitempty"`
	Applied     bool   `json:"applied"`
}

func changeView(c registry.Change) changeResponse {
	return changeResponse{
		Kind:        string(c.Kind),
		Project:     c.Project,
		Environment: string(c.Environment),
		Subject:     c.Subject,
		Detail:      c.Detail,
		Applied:     c.Applied,
	}
}

type issueResponse struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func issueView(i registry.Issue) issueResponse {
	return issueResponse{
		Kind:    string(i.Kind),
		Subject: i.Subject,
		Message: i.Message,
	}
}

type historyEntryResponse struct {
	ID          string    `json:"id"`
	Actor       string    `json:"actor"`
	Operation   string    `json:"operation"`
	ProjectID   string    `json:"project_id,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Details     string    `json:"details,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func historyEntryView(e *domain.ChangeHistoryEntry) historyEntryResponse {
	view := historyEntryResponse{
		ID:        e.ID.String(),
		Actor:     e.Actor,
		Operation: e.Operation.String(),
		Details:   e.Details,
		CreatedAt: e.CreatedAt,
	}
	if e.ProjectID != nil {
		view.ProjectID = e.ProjectID.String()
	}
	if e.Environment != nil {
		view.Environment = string(*e.Environment)
	}
	return view
}

type backupResponse struct {
	ID       string    `json:"id"`
	Location string    `json:"location"`
	Verified bool      `json:"verified"`
	TakenAt  time.Time `json:"taken_at"`
}

func backupView(b *domain.BackupRecord) backupResponse {
	return backupResponse{
		ID:       b.ID.String(),
		Location: b.Location,
		Verified: b.Verified,
		TakenAt:  b.TakenAt,
	}
}
