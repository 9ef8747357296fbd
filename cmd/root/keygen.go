package root

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/cmd/output"
	"github.com/rudder-cd/rudder/cmd/utils"
	"github.com/rudder-cd/rudder/config"
	"github.com/rudder-cd/rudder/token"
)

// NewCmdKeygen creates the key generation command. It runs before any keys
// exist, so it skips the configuration and app initialization the parent
// performs.
func NewCmdKeygen(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate the user and admin signing keys",
		Long: `Generate the two keys confirmations are signed with and write them
to the .env file in the data directory. The user key confirms medium
and high operations; the admin key confirms critical ones and opens
emergency windows. An existing .env file is never overwritten.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			output.InitColors(output.NoColor.IsSet())
		},
		Run: func(cmd *cobra.Command, args []string) {
			userKey, err := token.GenerateKey()
			if err != nil {
				utils.HandleCommandError("generating user key", err)
				return
			}
			adminKey, err := token.GenerateKey()
			if err != nil {
				utils.HandleCommandError("generating admin key", err)
				return
			}

			dir := *dataDir
			if dir == "" {
				dir = os.Getenv("RUDDER_DATA_DIR")
			}
			if dir == "" {
				dir = config.GetDefaultDataDir()
			}

			envFile := filepath.Join(dir, ".env")
			if _, err := os.Stat(envFile); err == nil {
				_ = output.FprintWarning(cmd, "%s already exists and was not modified.", envFile)
				_ = output.FprintPlain(cmd, "RUDDER_USER_KEY=%s\nRUDDER_ADMIN_KEY=%s", userKey, adminKey)
				return
			}

			if err := os.MkdirAll(dir, 0o755); err != nil {
				utils.HandleCommandError("creating data directory", err, "dir", dir)
				return
			}

			content := fmt.Sprintf("RUDDER_USER_KEY=%s\nRUDDER_ADMIN_KEY=%s\n", userKey, adminKey)
			if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
				utils.HandleCommandError("writing key file", err, "path", envFile)
				return
			}

			_ = output.FprintSuccess(cmd, "Keys written to %s.", envFile)
			_ = output.FprintPlain(cmd, "Keep the admin key offline; anyone holding it can confirm critical operations.")
		},
	}
}
