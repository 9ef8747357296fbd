// Package root implements the command line interface for Rudder.
package root

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/cmd/deploy"
	"github.com/rudder-cd/rudder/cmd/maintain"
	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/project"
	"github.com/rudder-cd/rudder/cmd/protect"
	"github.com/rudder-cd/rudder/cmd/server"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/cmd/version"
	"github.com/rudder-cd/rudder/config"
	"github.com/rudder-cd/rudder/logging"
)

func Execute() {
	if err := NewCmdRoot(config.GetDefaultDataDir()).Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCmdRoot(defaultDataDir string) *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "rudder",
		Short: "Deployment control plane for containerized web projects",
		Long: `Rudder tracks which projects run where (ports, domains, blue/green
slots), executes deployments against a container engine, and gates the
dangerous operations behind confirmations, cooldowns and backup checks.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize configuration for CLI with data directory override
			cfg, err := config.NewConfigForCLI(dataDir)
			if err != nil {
				log.Fatalf("Failed to initialize configuration: %s", err)
			}

			// Initialize colors (CLI flag overrides config)
			colorDisabled := !cfg.ColorEnabled
			if output.NoColor.IsSet() {
				colorDisabled = true
			}
			output.InitColors(colorDisabled)

			// Initialize logging (CLI flag overrides config)
			logLevel := cfg.LogLevel
			if logging.LogLevel.IsSet() {
				logLevel = logging.LogLevel.String()
			}
			logging.InitLogging(logLevel)

			// Initialize application with config
			if err := app.InitializeWithConfig(cfg); err != nil {
				log.Fatalf("Failed to initialize application: %s", err)
			}
		},
	}

	cmd.PersistentFlags().
		StringVarP(&dataDir, "data-dir", "d", "", "Data directory for Rudder state (default "+defaultDataDir+")")
	cmd.PersistentFlags().VarP(logging.LogLevel, "log-level", "l", "Set log verbosity level")
	cmd.PersistentFlags().VarP(output.NoColor, "no-color", "c", "Disable colored terminal output")
	cmd.PersistentFlags().StringVarP(&utils.Actor, "actor", "a", "", "Acting identity recorded in change history (default $USER)")

	cmd.AddCommand(project.NewCmdProject())
	cmd.AddCommand(project.NewCmdPort())
	cmd.AddCommand(project.NewCmdDomain())
	cmd.AddCommand(deploy.NewCmdDeploy())
	cmd.AddCommand(deploy.NewCmdPromote())
	cmd.AddCommand(deploy.NewCmdRollback())
	cmd.AddCommand(deploy.NewCmdSlots())
	cmd.AddCommand(protect.NewCmdConfirm())
	cmd.AddCommand(protect.NewCmdTickets())
	cmd.AddCommand(protect.NewCmdEmergency())
	cmd.AddCommand(maintain.NewCmdValidate())
	cmd.AddCommand(maintain.NewCmdSync())
	cmd.AddCommand(maintain.NewCmdHistory())
	cmd.AddCommand(maintain.NewCmdBackup())
	cmd.AddCommand(server.NewCmdServer())
	cmd.AddCommand(version.NewCmdVersion())
	cmd.AddCommand(NewCmdKeygen(&dataDir))
	return cmd
}
