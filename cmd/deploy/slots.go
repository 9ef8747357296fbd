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

func NewCmdSlots() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots <project>",
		Short: "Show slot status for an environment",
		Long:  "Show both slots of an environment: the recorded state next to what the container engine reports.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			envName, _ := cmd.Flags().GetString("env")

			env, err := domain.ParseEnvironmentClass(envName)
			if err != nil {
				utils.HandleCommandError("showing slots", err, "environment", envName)
				return
			}

			project, err := utils.ResolveProject(cmd.Context(), app.GetRegistryService(), args[0])
			if err != nil {
				utils.HandleCommandError("showing slots", err)
				return
			}

			views, err := app.GetSlotManager().Status(cmd.Context(), project.ID, env)
			if err != nil {
				utils.HandleCommandError("showing slots", err, "project", project.Name)
				return
			}

			out, err := output.PrintSlotStatus(views)
			if err != nil {
				utils.HandleCommandError("printing slot status", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing slot status", err)
			}
		},
	}

	cmd.Flags().StringP("env", "e", "", "Environment class (staging, production, preview)")
	if err := cmd.MarkFlagRequired("env"); err != nil {
		slog.Error("Failed to mark env flag as required", "error", err)
		panic(fmt.Sprintf("CLI setup error: %v", err))
	}
	return cmd
}
