package protect

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

func NewCmdEmergency() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Manage the emergency window",
		Long: `Open, close or inspect the emergency window. While a window is
open, confirmation and cooldown gates are waived for medium and high
operations; critical operations keep every gate. All operations run
under a window are logged separately.`,
	}

	cmd.AddCommand(NewCmdEmergencyOpen())
	cmd.AddCommand(NewCmdEmergencyClose())
	cmd.AddCommand(NewCmdEmergencyStatus())
	return cmd
}

func NewCmdEmergencyOpen() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open an emergency window",
		Run: func(cmd *cobra.Command, args []string) {
			reason, _ := cmd.Flags().GetString("reason")
			duration, _ := cmd.Flags().GetDuration("duration")

			if duration == 0 {
				duration = app.GetConfig().EmergencyMaxDuration
			}

			// Opening requires proof of admin key possession. The CLI holds
			// the keys locally, so it mints the credential itself.
			credential, err := app.GetTokenService().MintCredential(domain.ConfirmRoleAdmin, protection.EmergencyPurpose)
			if err != nil {
				utils.HandleCommandError("opening emergency window", err)
				return
			}

			window, err := app.GetProtectionService().OpenEmergency(cmd.Context(),
				utils.ActorName(), reason, duration, credential)
			if err != nil {
				utils.HandleCommandError("opening emergency window", err)
				return
			}

			_ = output.FprintWarning(cmd, "Emergency window open until %s. Confirmation and cooldown gates are waived for medium and high operations.",
				window.ExpiresAt.Format("2006-01-02 15:04:05"))
		},
	}

	cmd.Flags().StringP("reason", "r", "", "Why the window is needed (recorded in the emergency log)")
	cmd.Flags().DurationP("duration", "d", 0, "Window duration; defaults to the configured maximum")
	if err := cmd.MarkFlagRequired("reason"); err != nil {
		slog.Error("Failed to mark reason flag as required", "error", err)
		panic(fmt.Sprintf("CLI setup error: %v", err))
	}
	return cmd
}

func NewCmdEmergencyClose() *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Close the open emergency window",
		Run: func(cmd *cobra.Command, args []string) {
			window, err := app.GetProtectionService().CloseEmergency(cmd.Context(), utils.ActorName())
			if err != nil {
				utils.HandleCommandError("closing emergency window", err)
				return
			}

			openFor := time.Since(window.OpenedAt).Round(time.Second)
			_ = output.FprintSuccess(cmd, "Emergency window closed after %s.", openFor)
		},
	}
}

func NewCmdEmergencyStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the emergency window and its operation log",
		Run: func(cmd *cobra.Command, args []string) {
			window, log, err := app.GetProtectionService().EmergencyStatus(cmd.Context())
			if err != nil {
				utils.HandleCommandError("checking emergency status", err)
				return
			}

			out, err := output.PrintEmergencyStatus(window, log)
			if err != nil {
				utils.HandleCommandError("printing emergency status", err)
				return
			}
			if err := output.FprintPlain(cmd, "%s", out); err != nil {
				utils.HandleCommandError("printing emergency status", err)
			}
		},
	}
}
