package project

import (
	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/protection"
)

func NewCmdProjectArchive() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <project>",
		Short: "Archive a project",
		Long: `Archive a project, hiding it from default listings. Its history,
ports and domains are kept. Archiving requires a confirmed ticket.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			actor := utils.ActorName()
			reg := app.GetRegistryService()

			project, err := utils.ResolveProject(cmd.Context(), reg, args[0])
			if err != nil {
				utils.HandleCommandError("archiving project", err)
				return
			}

			ticketID := utils.TicketIDFlag(cmd)
			err = app.GetProtectionService().Require(cmd.Context(), protection.Request{
				Operation: domain.OpProjectArchive,
				Target:    project.Name,
				ProjectID: &project.ID,
				Actor:     actor,
				TicketID:  ticketID,
			})
			if err != nil {
				utils.HandleOperationError(cmd, "archiving project", err, "project", project.Name)
				return
			}

			archived, err := reg.ArchiveProject(cmd.Context(), actor, project.ID)
			if err != nil {
				utils.HandleCommandError("archiving project", err, "project", project.Name)
				return
			}
			utils.ConsumeTicket(cmd.Context(), ticketID)

			if err := output.FprintSuccess(cmd, "Project %s archived.", archived.Name); err != nil {
				utils.HandleCommandError("printing archive result", err)
			}
		},
	}

	cmd.Flags().String("ticket", "", "Confirmed ticket ID authorizing the operation")
	return cmd
}
