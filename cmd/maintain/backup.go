package maintain

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/protection"
)

func NewCmdBackup() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage backup records",
	}

	cmd.AddCommand(NewCmdBackupRecord())
	return cmd
}

func NewCmdBackupRecord() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <project>",
		Short: "Register a completed backup",
		Long: `Register that a backup of a project was taken. Rudder does not
run backups itself; this record is what the backup-exists gate checks
before destructive operations.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			location, _ := cmd.Flags().GetString("location")
			verified, _ := cmd.Flags().GetBool("verified")
			actor := utils.ActorName()

			project, err := utils.ResolveProject(cmd.Context(), app.GetRegistryService(), args[0])
			if err != nil {
				utils.HandleCommandError("recording backup", err)
				return
			}

			err = app.GetProtectionService().Require(cmd.Context(), protection.Request{
				Operation: domain.OpBackupRecord,
				Target:    project.Name,
				ProjectID: &project.ID,
				Actor:     actor,
			})
			if err != nil {
				utils.HandleOperationError(cmd, "recording backup", err, "project", project.Name)
				return
			}

			record, err := app.GetBackupRecorder().Record(cmd.Context(), actor, project.ID,
				location, verified, time.Now())
			if err != nil {
				utils.HandleCommandError("recording backup", err, "project", project.Name)
				return
			}

			_ = output.FprintSuccess(cmd, "Backup of %s recorded (%s, verified=%t).",
				project.Name, record.Location, record.Verified)
		},
	}

	cmd.Flags().StringP("location", "l", "", "Where the backup artifact lives")
	cmd.Flags().Bool("verified", true, "Whether the backup was restore-tested")
	if err := cmd.MarkFlagRequired("location"); err != nil {
		slog.Error("Failed to mark location flag as required", "error", err)
		panic(fmt.Sprintf("CLI setup error: %v", err))
	}
	return cmd
}
