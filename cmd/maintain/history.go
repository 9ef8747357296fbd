package maintain

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
)

const defaultHistoryLimit = 50

func NewCmdHistory() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the change history",
		Long:  "Show recorded mutations, newest first. Filter to one project with --project.",
		Run: func(cmd *cobra.Command, args []string) {
			projectName, _ := cmd.Flags().GetString("project")
			limit, _ := cmd.Flags().GetInt("limit")

			var projectID *uuid.UUID
			if projectName != "" {
				project, err := utils.ResolveProject(cmd.Context(), app.GetRegistryService(), projectName)
				if err != nil {
					utils.HandleCommandError("showing history", err)
					return
				}
				projectID = &project.ID
			}

			entries, err := app.GetRegistryService().History(cmd.Context(), projectID, limit)
			if err != nil {
				utils.HandleCommandError("showing history", err)
				return
			}

			out, err := output.PrintHistory(entries)
			if err != nil {
				utils.HandleCommandError("printing history", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing history", err)
			}
		},
	}

	cmd.Flags().StringP("project", "p", "", "Limit history to one project")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum entries to show")
	return cmd
}
