// Package maintain provides the registry maintenance commands in Rudder.
package maintain

import (
	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
)

func NewCmdValidate() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check registry consistency",
		Long: `Cross-check every registry table: ports inside their reserved
ranges, no duplicate ports or domains, no orphaned allocations, at most
one active slot per environment. Reports findings without fixing them.`,
		Run: func(cmd *cobra.Command, args []string) {
			issues, err := app.GetRegistryService().Validate(cmd.Context())
			if err != nil {
				utils.HandleCommandError("validating registry", err)
				return
			}

			out, err := output.PrintIssueList(issues)
			if err != nil {
				utils.HandleCommandError("printing validation issues", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing validation issues", err)
			}
		},
	}
}
