package maintain

import (
	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/protection"
)

func NewCmdSync() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Compare the registry against the live host",
		Long: `Compare recorded slots and routes against what the container
engine reports. The default run only reports drift; --apply corrects
the host to match the registry and requires a confirmed ticket.`,
		Run: func(cmd *cobra.Command, args []string) {
			apply, _ := cmd.Flags().GetBool("apply")
			actor := utils.ActorName()

			ticketID := utils.TicketIDFlag(cmd)
			if apply {
				err := app.GetProtectionService().Require(cmd.Context(), protection.Request{
					Operation: domain.OpRegistrySync,
					Target:    "registry",
					Actor:     actor,
					TicketID:  ticketID,
				})
				if err != nil {
					utils.HandleOperationError(cmd, "syncing registry", err)
					return
				}
			}

			changes, err := app.GetSyncer().Sync(cmd.Context(), actor, !apply)
			if err != nil {
				utils.HandleCommandError("syncing registry", err)
				return
			}
			if apply {
				utils.ConsumeTicket(cmd.Context(), ticketID)
			}

			if !apply && len(changes) > 0 {
				_ = output.FprintWarning(cmd, "Dry run: %d drift finding(s). Re-run with --apply to correct the host.", len(changes))
			}
			out, err := output.PrintChangeList(changes)
			if err != nil {
				utils.HandleCommandError("printing sync changes", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing sync changes", err)
			}
		},
	}

	cmd.Flags().Bool("apply", false, "Correct the host instead of only reporting drift")
	cmd.Flags().String("ticket", "", "Confirmed ticket ID authorizing the operation")
	return cmd
}
