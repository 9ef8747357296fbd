// Package deploy provides the deployment lifecycle commands in Rudder.
package deploy

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/orchestrator"
)

func NewCmdDeploy() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a project from its deploy config",
		Long: `Deploy the release described by a rudder.yaml deploy config. The
release lands on the inactive slot; traffic moves only when the new
container is healthy. With --dry-run the plan is printed instead.`,
		Run: func(cmd *cobra.Command, args []string) {
			configPath, _ := cmd.Flags().GetString("file")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			deployConfig, err := orchestrator.LoadDeployConfig(configPath)
			if err != nil {
				utils.HandleCommandError("loading deploy config", err, "path", configPath)
				return
			}

			req := orchestrator.DeployRequest{
				Actor:    utils.ActorName(),
				Config:   deployConfig,
				TicketID: utils.TicketIDFlag(cmd),
			}

			if dryRun {
				plan, err := app.GetOrchestrator().PlanDeploy(cmd.Context(), req)
				if err != nil {
					utils.HandleOperationError(cmd, "planning deployment", err)
					return
				}
				_ = output.FprintPlain(cmd, "Deployment plan for %s/%s:", plan.Project, plan.Environment)
				out, err := output.PrintDeploymentPlan(plan)
				if err != nil {
					utils.HandleCommandError("printing deployment plan", err)
					return
				}
				if err := output.FprintPlain(cmd, "%s", out); err != nil {
					utils.HandleCommandError("printing deployment plan", err)
				}
				return
			}

			result, err := app.GetOrchestrator().DeployProject(cmd.Context(), req)
			if err != nil {
				printFailedDeployment(cmd, err)
				utils.HandleOperationError(cmd, "deploying project", err, "project", deployConfig.Project)
				return
			}

			_ = output.FprintSuccess(cmd, "Deployed %s/%s.", result.Project, result.Environment)
			out, err := output.PrintDeploymentResult(result)
			if err != nil {
				utils.HandleCommandError("printing deployment result", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing deployment result", err)
			}
		},
	}

	cmd.Flags().StringP("file", "f", "rudder.yaml", "Path to the deploy config")
	cmd.Flags().Bool("dry-run", false, "Print the deployment plan without executing it")
	cmd.Flags().String("ticket", "", "Confirmed ticket ID authorizing the operation")
	return cmd
}

// printFailedDeployment shows the per-service outcome carried by partial and
// total failures before the error itself is reported.
func printFailedDeployment(cmd *cobra.Command, err error) {
	var result *domain.DeploymentResult

	var partial *domain.PartialFailureError
	var total *domain.TotalFailureError
	switch {
	case errors.As(err, &partial):
		result = partial.Result
	case errors.As(err, &total):
		result = total.Result
	}
	if result == nil {
		return
	}

	out, printErr := output.PrintDeploymentResult(result)
	if printErr != nil {
		slog.Error("Failed to print deployment result", "error", printErr)
		return
	}
	fmt.Fprint(os.Stderr, out)
}
