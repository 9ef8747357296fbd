package project

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/registry"
)

func NewCmdProjectAdd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new project",
		Long: `Register a project in the deployment registry. Environments come
into existence with their first port allocation; a fresh project has
none.`,
		Run: func(cmd *cobra.Command, args []string) {
			name, _ := cmd.Flags().GetString("name")
			typeName, _ := cmd.Flags().GetString("type")
			gitRepo, _ := cmd.Flags().GetString("git-repo")

			projectType, err := domain.ParseProjectType(typeName)
			if err != nil {
				utils.HandleCommandError("registering project", err, "type", typeName)
				return
			}

			project, err := app.GetRegistryService().RegisterProject(cmd.Context(), utils.ActorName(), registry.ProjectConfig{
				Name:    name,
				Type:    projectType,
				GitRepo: gitRepo,
			})
			if err != nil {
				utils.HandleCommandError("registering project", err, "name", name)
				return
			}

			out, err := output.PrintProjectDetails(project, nil, nil)
			if err != nil {
				utils.HandleCommandError("printing project details", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing project details", err)
			}
		},
	}

	cmd.Flags().StringP("name", "n", "", "Project name")
	cmd.Flags().StringP("type", "t", "", "Project type (nextjs, node, static)")
	cmd.Flags().StringP("git-repo", "g", "", "Source repository URL (informational)")
	for _, flag := range []string{"name", "type"} {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			slog.Error("Failed to mark flag as required", "flag", flag, "error", err)
			panic(fmt.Sprintf("CLI setup error: %v", err))
		}
	}
	return cmd
}
