package protect

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
)

func NewCmdTickets() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "List pending confirmation tickets",
		Run: func(cmd *cobra.Command, args []string) {
			tickets, err := app.GetProtectionService().ListPending(cmd.Context())
			if err != nil {
				utils.HandleCommandError("listing tickets", err)
				return
			}

			out, err := output.PrintTicketList(tickets)
			if err != nil {
				utils.HandleCommandError("printing ticket list", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing ticket list", err)
			}
		},
	}

	cmd.AddCommand(NewCmdTicketsCancel())
	return cmd
}

func NewCmdTicketsCancel() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <ticket-id>",
		Short: "Cancel a pending ticket",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ticketID, err := uuid.Parse(args[0])
			if err != nil {
				utils.HandleInvalidUUID("cancelling ticket", args[0])
				return
			}

			ticket, err := app.GetProtectionService().CancelTicket(cmd.Context(), ticketID)
			if err != nil {
				utils.HandleCommandError("cancelling ticket", err, "ticket_id", ticketID)
				return
			}

			_ = output.FprintSuccess(cmd, "Ticket %s (%s) cancelled.", ticket.ID, ticket.Operation)
		},
	}
}
