package project

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/config"
	"github.com/rudder-cd/rudder/domain"
)

func NewCmdDomain() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Manage domain bindings",
	}

	cmd.AddCommand(NewCmdDomainBind())
	return cmd
}

func NewCmdDomainBind() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bind <domain>",
		Short: "Bind a public domain to a project environment",
		Long: `Bind a domain to one project environment. A domain points at a
single environment at a time; rebinding it elsewhere requires removing
the old binding first.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			projectName, _ := cmd.Flags().GetString("project")
			envName, _ := cmd.Flags().GetString("env")

			env, err := domain.ParseEnvironmentClass(envName)
			if err != nil {
				utils.HandleCommandError("binding domain", err, "environment", envName)
				return
			}

			reg := app.GetRegistryService()
			project, err := utils.ResolveProject(cmd.Context(), reg, projectName)
			if err != nil {
				utils.HandleCommandError("binding domain", err)
				return
			}

			binding, err := reg.BindDomain(cmd.Context(), utils.ActorName(), args[0], project.ID, env)
			if err != nil {
				utils.HandleCommandError("binding domain", err, "domain", args[0])
				return
			}

			err = output.FprintSuccess(cmd, "Bound %s to %s/%s (%s).",
				binding.Domain, project.Name, env, config.PublicURL(binding.Domain))
			if err != nil {
				utils.HandleCommandError("printing binding", err)
			}
		},
	}

	cmd.Flags().StringP("project", "p", "", "Project the domain routes to")
	cmd.Flags().StringP("env", "e", "", "Environment class (staging, production, preview)")
	for _, flag := range []string{"project", "env"} {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			slog.Error("Failed to mark flag as required", "flag", flag, "error", err)
			panic(fmt.Sprintf("CLI setup error: %v", err))
		}
	}
	return cmd
}
