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

func NewCmdPromote() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote <project>",
		Short: "Move traffic to a healthy slot",
		Long: `Promote a slot to active, rewriting the proxy route so traffic
reaches its container. Without --slot the inactive slot is promoted.
Only slots holding a healthy container can receive traffic.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			envName, _ := cmd.Flags().GetString("env")
			slotArg, _ := cmd.Flags().GetString("slot")

			env, err := domain.ParseEnvironmentClass(envName)
			if err != nil {
				utils.HandleCommandError("promoting slot", err, "environment", envName)
				return
			}

			var slotName *domain.SlotName
			if slotArg != "" {
				parsed, err := domain.ParseSlotName(slotArg)
				if err != nil {
					utils.HandleCommandError("promoting slot", err, "slot", slotArg)
					return
				}
				slotName = &parsed
			}

			project, err := utils.ResolveProject(cmd.Context(), app.GetRegistryService(), args[0])
			if err != nil {
				utils.HandleCommandError("promoting slot", err)
				return
			}

			promoted, err := app.GetSlotManager().Promote(cmd.Context(), utils.ActorName(),
				project.ID, env, slotName, utils.TicketIDFlag(cmd))
			if err != nil {
				utils.HandleOperationError(cmd, "promoting slot", err, "project", project.Name)
				return
			}

			err = output.FprintSuccess(cmd, "Promoted %s/%s slot %s (%s).",
				project.Name, env, promoted.Name, promoted.Image)
			if err != nil {
				utils.HandleCommandError("printing promotion result", err)
			}
		},
	}

	cmd.Flags().StringP("env", "e", "", "Environment class (staging, production, preview)")
	cmd.Flags().StringP("slot", "s", "", "Slot to promote (blue, green); defaults to the inactive slot")
	cmd.Flags().String("ticket", "", "Confirmed ticket ID authorizing the operation")
	if err := cmd.MarkFlagRequired("env"); err != nil {
		slog.Error("Failed to mark env flag as required", "error", err)
		panic(fmt.Sprintf("CLI setup error: %v", err))
	}
	return cmd
}
