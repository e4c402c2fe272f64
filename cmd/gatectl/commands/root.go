package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatectl/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "gatectl - gate controller for caller ID, SMS, chat and RF remotes",
	Long: `gatectl drives a gate actuator from a small Linux board. Access is
granted to whitelisted callers, SMS and chat senders, and to matching 433MHz
remote codes. Run "gatectl run" to start the controller; the other commands
are probes for installing and debugging a board.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Errors are printed by the commands.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		printErr(os.Stderr, "%v\n", err)
	}
	return err
}

func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default "+config.DefaultPath+" when present)")
}

// loadConfig reads --config, or gatectl.yml in the working directory when it
// exists, or falls back to defaults plus environment.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}
	return config.Load(path)
}

// dated substitutes the YYYYMMDD date for %s in a path template.
func dated(tmpl string, t time.Time) string {
	if !strings.Contains(tmpl, "%s") {
		return tmpl
	}
	return strings.ReplaceAll(tmpl, "%s", t.Format("20060102"))
}
