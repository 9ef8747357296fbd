package project

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/domain"
)

func NewCmdPort() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "port",
		Short: "Manage port allocations",
	}

	cmd.AddCommand(NewCmdPortAllocate())
	return cmd
}

func NewCmdPortAllocate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate <project>",
		Short: "Allocate a port for a project environment",
		Long: `Allocate the next free port from the range reserved for the
environment class and role. Allocations are idempotent: repeating one
returns the port already assigned.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			envName, _ := cmd.Flags().GetString("env")
			roleName, _ := cmd.Flags().GetString("role")

			env, err := domain.ParseEnvironmentClass(envName)
			if err != nil {
				utils.HandleCommandError("allocating port", err, "environment", envName)
				return
			}
			role, err := domain.ParsePortRole(roleName)
			if err != nil {
				utils.HandleCommandError("allocating port", err, "role", roleName)
				return
			}

			reg := app.GetRegistryService()
			project, err := utils.ResolveProject(cmd.Context(), reg, args[0])
			if err != nil {
				utils.HandleCommandError("allocating port", err)
				return
			}

			allocation, err := reg.AllocatePort(cmd.Context(), utils.ActorName(), project.ID, env, role)
			if err != nil {
				utils.HandleCommandError("allocating port", err, "project", project.Name, "environment", env.String())
				return
			}

			err = output.FprintSuccess(cmd, "Allocated port %d (%s) for %s/%s.",
				allocation.Port, allocation.Role, project.Name, env)
			if err != nil {
				utils.HandleCommandError("printing allocation", err)
			}
		},
	}

	cmd.Flags().StringP("env", "e", "", "Environment class (staging, production, preview)")
	cmd.Flags().StringP("role", "r", "app", "Port role (app, db, cache)")
	if err := cmd.MarkFlagRequired("env"); err != nil {
		slog.Error("Failed to mark env flag as required", "error", err)
		panic(fmt.Sprintf("CLI setup error: %v", err))
	}
	return cmd
}
