// Package protect provides the confirmation and emergency commands in Rudder.
package protect

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/domain"
)

func NewCmdConfirm() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <ticket-id>",
		Short: "Confirm a pending ticket",
		Long: `Confirm a queued confirmation ticket with its token. The signing
role must match what the ticket requires; critical operations take an
admin confirmation. A confirmed ticket authorizes exactly one
resubmission of its operation.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			confirmToken, _ := cmd.Flags().GetString("token")
			roleName, _ := cmd.Flags().GetString("role")

			ticketID, err := uuid.Parse(args[0])
			if err != nil {
				utils.HandleInvalidUUID("confirming ticket", args[0])
				return
			}
			role, err := domain.ParseConfirmRole(roleName)
			if err != nil {
				utils.HandleCommandError("confirming ticket", err, "role", roleName)
				return
			}

			ticket, err := app.GetProtectionService().ConfirmTicket(cmd.Context(), ticketID, confirmToken, role)
			if err != nil {
				utils.HandleCommandError("confirming ticket", err, "ticket_id", ticketID)
				return
			}

			_ = output.FprintSuccess(cmd, "Ticket confirmed. Re-run the %s command with --ticket %s.",
				ticket.Operation, ticket.ID)
		},
	}

	cmd.Flags().StringP("token", "t", "", "Confirmation token printed when the ticket was queued")
	cmd.Flags().StringP("role", "r", "user", "Signing role (user, admin)")
	if err := cmd.MarkFlagRequired("token"); err != nil {
		slog.Error("Failed to mark token flag as required", "error", err)
		panic(fmt.Sprintf("CLI setup error: %v", err))
	}
	return cmd
}
