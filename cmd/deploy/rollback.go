package deploy

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/domain"
)

func NewCmdRollback() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <project>",
		Short: "Return traffic to the previous slot",
		Long: `Roll an environment back by promoting the inactive slot, which
holds the previous release. Fails when that slot no longer has a
healthy container to return to.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			envName, _ := cmd.Flags().GetString("env")

			env, err := domain.ParseEnvironmentClass(envName)
			if err != nil {
				utils.HandleCommandError("rolling back", err, "environment", envName)
				return
			}

			project, err := utils.ResolveProject(cmd.Context(), app.GetRegistryService(), args[0])
			if err != nil {
				utils.HandleCommandError("rolling back", err)
				return
			}

			restored, err := app.GetSlotManager().Rollback(cmd.Context(), utils.ActorName(),
				project.ID, env, utils.TicketIDFlag(cmd))
			if err != nil {
				utils.HandleOperationError(cmd, "rolling back", err, "project", project.Name)
				return
			}

			err = output.FprintSuccess(cmd, "Rolled %s/%s back to slot %s (%s).",
				project.Name, env, restored.Name, restored.Image)
			if err != nil {
				utils.HandleCommandError("printing rollback result", err)
			}
		},
	}

	cmd.Flags().StringP("env", "e", "", "Environment class (staging, production, preview)")
	cmd.Flags().String("ticket", "", "Confirmed ticket ID authorizing the operation")
	if err := cmd.MarkFlagRequired("env"); err != nil {
		slog.Error("Failed to mark env flag as required", "error", err)
		panic(fmt.Sprintf("CLI setup error: %v", err))
	}
	return cmd
}
