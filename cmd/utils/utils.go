// Package utils provides utility functions for CLI commands in Rudder.
package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/registry"
)

// Actor is bound to the persistent --actor flag on the root command.
var Actor string

// ActorName resolves the identity recorded in change history: the --actor
// flag when given, else $USER, else "cli".
func ActorName() string {
	if Actor != "" {
		return Actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "cli"
}

// HandleCommandError provides consistent error handling for CLI commands
func HandleCommandError(operation string, err error, context ...any) {
	slog.Error("Command failed", append([]any{"operation", operation, "error", err}, context...)...)
	fmt.Fprint(os.Stderr, output.PrintMessage(output.Error, "Error: %s failed: %v", operation, err))
	os.Exit(1)
}

// HandleInvalidUUID provides consistent handling for invalid UUID errors
func HandleInvalidUUID(operation, input string) {
	slog.Warn("Invalid UUID provided", "operation", operation, "input", input)
	fmt.Fprint(os.Stderr, output.PrintMessage(output.Error, "Error: Invalid ID '%s'. Must be a valid UUID.", input))
	os.Exit(1)
}

// HandleOperationError recognizes protection outcomes before generic
// failures. A needs-confirmation result is not a dead end: it prints the
// queued ticket and how to proceed. A denial prints the unmet gate.
// Everything else falls through to HandleCommandError.
func HandleOperationError(cmd *cobra.Command, operation string, err error, context ...any) {
	var needsConfirmation *domain.NeedsConfirmationError
	if errors.As(err, &needsConfirmation) && needsConfirmation.Ticket != nil {
		ticket := needsConfirmation.Ticket
		_ = output.FprintWarning(cmd, "%s requires confirmation: %s", operation, needsConfirmation.Reason)
		if table, tableErr := output.PrintTicketDetails(ticket); tableErr == nil {
			_ = output.FprintPlain(cmd, "%s", table)
		}
		_ = output.FprintPlain(cmd, "Confirm with:\n  rudder confirm %s --token %s", ticket.ID, ticket.ConfirmToken)
		_ = output.FprintPlain(cmd, "Then re-run the command with --ticket %s", ticket.ID)
		os.Exit(1)
	}

	var denied *domain.DeniedError
	if errors.As(err, &denied) {
		slog.Warn("Operation denied", "operation", operation, "gate", string(denied.Gate), "level", denied.Level.String())
		_ = output.FprintError(cmd, "Denied (%s, level %s): %s", denied.Gate, denied.Level, denied.Reason)
		os.Exit(1)
	}

	HandleCommandError(operation, err, context...)
}

// TicketIDFlag reads the --ticket flag, exiting on a malformed id.
func TicketIDFlag(cmd *cobra.Command) *uuid.UUID {
	raw, _ := cmd.Flags().GetString("ticket")
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		HandleInvalidUUID("parsing ticket id", raw)
		return nil
	}
	return &id
}

// ConsumeTicket marks a resubmitted ticket used after its operation ran.
// Failures are logged, not fatal: the operation already succeeded.
func ConsumeTicket(ctx context.Context, ticketID *uuid.UUID) {
	if ticketID == nil {
		return
	}
	if err := app.GetProtectionService().Consume(ctx, *ticketID); err != nil {
		slog.Error("Failed to consume confirmation ticket", "ticket_id", *ticketID, "error", err)
	}
}

// ResolveProject looks a project up by name and suggests the closest
// registered name when the lookup misses.
func ResolveProject(ctx context.Context, reg *registry.Service, name string) (*domain.Project, error) {
	project, err := reg.FindProjectByName(ctx, name)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	projects, listErr := reg.ListProjects(ctx, nil)
	if listErr != nil {
		return nil, fmt.Errorf("project %q not found", name)
	}
	if suggestion := closestName(name, projects); suggestion != "" {
		return nil, fmt.Errorf("project %q not found, did you mean %q?", name, suggestion)
	}
	return nil, fmt.Errorf("project %q not found", name)
}

// closestName returns the registered name nearest to the input, or empty
// when nothing is close enough to be a plausible typo.
func closestName(input string, projects []*domain.Project) string {
	const maxDistance = 3

	best := ""
	bestDistance := maxDistance + 1
	for _, project := range projects {
		distance := levenshtein.ComputeDistance(input, project.Name)
		if distance < bestDistance && distance < len(project.Name) {
			best = project.Name
			bestDistance = distance
		}
	}
	return best
}
