package project

import (
	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/domain"
)

func NewCmdProjectList() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		Run: func(cmd *cobra.Command, args []string) {
			statusName, _ := cmd.Flags().GetString("status")

			var statusFilter *domain.ProjectStatus
			if statusName != "" {
				status, err := domain.ParseProjectStatus(statusName)
				if err != nil {
					utils.HandleCommandError("listing projects", err, "status", statusName)
					return
				}
				statusFilter = &status
			}

			projects, err := app.GetRegistryService().ListProjects(cmd.Context(), statusFilter)
			if err != nil {
				utils.HandleCommandError("listing projects", err)
				return
			}

			out, err := output.PrintProjectList(projects)
			if err != nil {
				utils.HandleCommandError("printing project list", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing project list", err)
			}
		},
	}

	cmd.Flags().StringP("status", "s", "", "Filter by status (active, archived)")
	return cmd
}
