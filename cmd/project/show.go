package project

import (
	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
)

func NewCmdProjectShow() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project>",
		Short: "Show project details",
		Long:  "Display a project with its environments, port allocations and domain bindings.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			reg := app.GetRegistryService()

			project, err := utils.ResolveProject(cmd.Context(), reg, args[0])
			if err != nil {
				utils.HandleCommandError("showing project", err)
				return
			}

			environments, err := reg.ListEnvironments(cmd.Context(), project.ID)
			if err != nil {
				utils.HandleCommandError("listing environments", err)
				return
			}
			bindings, err := reg.ListBindings(cmd.Context(), project.ID)
			if err != nil {
				utils.HandleCommandError("listing domain bindings", err)
				return
			}

			out, err := output.PrintProjectDetails(project, environments, bindings)
			if err != nil {
				utils.HandleCommandError("printing project details", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing project details", err)
			}
		},
	}
}
