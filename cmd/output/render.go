package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/registry"
	"github.com/rudder-cd/rudder/slot"
)

const timeFormat = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.Format(timeFormat)
}

func PrintProjectDetails(project *domain.Project, environments []*domain.Environment, bindings []*domain.DomainBinding) (string, error) {
	data := [][]string{
		{"ID", project.ID.String()},
		{"Name", project.Name},
		{"Type", project.Type.String()},
		{"Status", project.Status.String()},
	}
	if project.GitRepoStr() != "" {
		data = append(data, []string{"Git Repo", project.GitRepoStr()})
	}
	data = append(data,
		[]string{"Created At", formatTime(project.CreatedAt)},
		[]string{"Updated At", formatTime(project.UpdatedAt)},
	)

	for _, env := range environments {
		ports := []string{fmt.Sprintf("app %d", env.AppPort)}
		if env.DBPort != nil {
			ports = append(ports, fmt.Sprintf("db %d", *env.DBPort))
		}
		if env.CachePort != nil {
			ports = append(ports, fmt.Sprintf("cache %d", *env.CachePort))
		}
		line := strings.Join(ports, ", ")
		if env.DomainStr() != "" {
			line += fmt.Sprintf(", domain %s", env.DomainStr())
		}
		data = append(data, []string{env.Name.String(), line})
	}

	for _, binding := range bindings {
		data = append(data, []string{"Domain", fmt.Sprintf("%s (%s)", binding.Domain, binding.Environment)})
	}

	table, err := PrintTable([]string{}, data)
	if err != nil {
		return "", fmt.Errorf("printing project details table: %w", err)
	}
	return table, nil
}

func PrintProjectList(projects []*domain.Project) (string, error) {
	if len(projects) == 0 {
		return PrintMessage(Plain, "No projects found."), nil
	}

	header := []string{
		"ID",
		"Name",
		"Type",
		"Status",
		"Created At",
	}
	var data [][]string
	for _, project := range projects {
		data = append(data, []string{
			project.ID.String(),
			project.Name,
			project.Type.String(),
			project.Status.String(),
			formatTime(project.CreatedAt),
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing project list table: %w", err)
	}
	return table, nil
}

func PrintSlotStatus(views []slot.SlotView) (string, error) {
	if len(views) == 0 {
		return PrintMessage(Plain, "No slots recorded. Deploy once to create them."), nil
	}

	header := []string{
		"Slot",
		"Active",
		"Status",
		"Live",
		"Image",
		"Container",
		"Deployed At",
	}
	var data [][]string
	for _, view := range views {
		record := view.Record

		active := ""
		if record.IsActive {
			active = "*"
		}

		live := "missing"
		if view.Live != nil {
			live = view.Live.Status
			if view.Live.Health != "" {
				live = fmt.Sprintf("%s (%s)", view.Live.Status, view.Live.Health)
			}
		}
		if record.ContainerID == nil {
			live = ""
		}

		deployed := ""
		if record.DeployedAt != nil {
			deployed = formatTime(*record.DeployedAt)
		}

		data = append(data, []string{
			record.Name.String(),
			active,
			record.Status.String(),
			live,
			record.Image,
			record.ContainerIDStr(),
			deployed,
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing slot status table: %w", err)
	}
	return table, nil
}

func PrintTicketDetails(ticket *domain.ConfirmationTicket) (string, error) {
	data := [][]string{
		{"Ticket ID", ticket.ID.String()},
		{"Operation", ticket.Operation.String()},
		{"Target", ticket.Target},
		{"Danger Level", ticket.Level.String()},
		{"Required Role", ticket.RequiredRole.String()},
		{"Status", ticket.Status.String()},
		{"Requested By", ticket.RequestedBy},
		{"Expires At", formatTime(ticket.ExpiresAt)},
	}
	if ticket.Details != "" {
		data = append(data, []string{"Details", ticket.Details})
	}
	if ticket.Status == domain.TicketStatusPending {
		data = append(data, []string{"Confirm Token", ticket.ConfirmToken})
	}

	table, err := PrintTable([]string{}, data)
	if err != nil {
		return "", fmt.Errorf("printing ticket details table: %w", err)
	}
	return table, nil
}

func PrintTicketList(tickets []*domain.ConfirmationTicket) (string, error) {
	if len(tickets) == 0 {
		return PrintMessage(Plain, "No pending tickets."), nil
	}

	header := []string{
		"ID",
		"Operation",
		"Target",
		"Role",
		"Requested By",
		"Expires At",
	}
	var data [][]string
	for _, ticket := range tickets {
		data = append(data, []string{
			ticket.ID.String(),
			ticket.Operation.String(),
			ticket.Target,
			ticket.RequiredRole.String(),
			ticket.RequestedBy,
			formatTime(ticket.ExpiresAt),
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing ticket list table: %w", err)
	}
	return table, nil
}

func PrintEmergencyStatus(window *domain.EmergencyWindow, log []*domain.EmergencyLogEntry) (string, error) {
	if window == nil {
		return PrintMessage(Plain, "No emergency window is open."), nil
	}

	data := [][]string{
		{"Window ID", window.ID.String()},
		{"Opened By", window.Actor},
		{"Reason", window.Reason},
		{"Opened At", formatTime(window.OpenedAt)},
		{"Expires At", formatTime(window.ExpiresAt)},
	}

	table, err := PrintTable([]string{}, data)
	if err != nil {
		return "", fmt.Errorf("printing emergency window table: %w", err)
	}

	if len(log) == 0 {
		return table, nil
	}

	buf := strings.Builder{}
	buf.WriteString(table)
	buf.WriteString("\nOperations under this window:\n")
	for _, entry := range log {
		op := entry.Note
		if entry.Operation != nil {
			op = fmt.Sprintf("%s (%s)", entry.Operation.String(), entry.Note)
		}
		buf.WriteString(fmt.Sprintf("  %s  %s  %s\n", formatTime(entry.CreatedAt), entry.Actor, op))
	}
	return buf.String(), nil
}

func PrintDeploymentResult(result *domain.DeploymentResult) (string, error) {
	header := []string{
		"Service",
		"Status",
		"Container",
		"Duration",
	}
	var data [][]string
	for _, svc := range result.Services {
		container := ""
		if svc.ContainerID != nil {
			container = *svc.ContainerID
		}
		status := svc.Status.String()
		if svc.Error != "" {
			status = fmt.Sprintf("%s: %s", status, svc.Error)
		}
		data = append(data, []string{
			svc.Name.String(),
			status,
			container,
			svc.Duration.Round(time.Millisecond).String(),
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing deployment result table: %w", err)
	}

	buf := strings.Builder{}
	buf.WriteString(table)
	buf.WriteString(fmt.Sprintf("\nSlot: %s  Took: %s\n",
		result.Slot, result.Duration().Round(time.Millisecond)))
	if result.PublicURL != nil {
		buf.WriteString(fmt.Sprintf("URL: %s\n", *result.PublicURL))
	}
	return buf.String(), nil
}

func PrintDeploymentPlan(plan *domain.DeploymentPlan) (string, error) {
	if len(plan.Actions) == 0 {
		return PrintMessage(Plain, "Nothing to do."), nil
	}

	header := []string{
		"Stage",
		"Operation",
		"Description",
	}
	var data [][]string
	for _, action := range plan.Actions {
		data = append(data, []string{
			fmt.Sprintf("%d", action.Stage),
			action.Operation.String(),
			action.Description,
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing deployment plan table: %w", err)
	}
	return table, nil
}

func PrintChangeList(changes []registry.Change) (string, error) {
	if len(changes) == 0 {
		return PrintMessage(Plain, "Registry and host agree. No drift found."), nil
	}

	header := []string{
		"Kind",
		"Project",
		"Environment",
		"Subject",
		"Applied",
		"Detail",
	}
	var data [][]string
	for _, change := range changes {
		applied := "no"
		if change.Applied {
			applied = "yes"
		}
		data = append(data, []string{
			string(change.Kind),
			change.Project,
			change.Environment.String(),
			change.Subject,
			applied,
			change.Detail,
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing change list table: %w", err)
	}
	return table, nil
}

func PrintIssueList(issues []registry.Issue) (string, error) {
	if len(issues) == 0 {
		return PrintMessage(Success, "Registry is consistent. No issues found."), nil
	}

	header := []string{
		"Kind",
		"Subject",
		"Message",
	}
	var data [][]string
	for _, issue := range issues {
		data = append(data, []string{
			string(issue.Kind),
			issue.Subject,
			issue.Message,
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing issue list table: %w", err)
	}
	return table, nil
}

func PrintHistory(entries []*domain.ChangeHistoryEntry) (string, error) {
	if len(entries) == 0 {
		return PrintMessage(Plain, "No history recorded."), nil
	}

	header := []string{
		"Time",
		"Actor",
		"Operation",
		"Environment",
		"Details",
	}
	var data [][]string
	for _, entry := range entries {
		env := ""
		if entry.Environment != nil {
			env = entry.Environment.String()
		}
		data = append(data, []string{
			formatTime(entry.CreatedAt),
			entry.Actor,
			entry.Operation.String(),
			env,
			entry.Details,
		})
	}

	table, err := PrintTable(header, data)
	if err != nil {
		return "", fmt.Errorf("printing history table: %w", err)
	}
	return table, nil
}
