package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatectl/internal/probe"
)

var (
	rebootForce bool
	rebootDelay time.Duration
)

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot the board the way the controller does",
	Long: `Reboot the board after the delay. Without --force this honours the
reboot_dry_run setting and only logs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		dry := cfg.Health.RebootDryRun && !rebootForce
		delay := cfg.Health.RebootDelay
		if cmd.Flags().Changed("delay") {
			delay = rebootDelay
		}

		if dry {
			printWarn(out, "dry run: not rebooting (use --force)\n")
		} else {
			printStep(out, "rebooting in %s\n", delay)
		}
		r := probe.NewSystemRebooter(dry, delay, nil, nil)
		return r.Reboot(cmd.Context())
	},
}

func init() {
	rebootCmd.Flags().BoolVar(&rebootForce, "force", false, "reboot even when reboot_dry_run is set")
	rebootCmd.Flags().DurationVar(&rebootDelay, "delay", probe.DefaultRebootDelay, "wait before rebooting")
	rootCmd.AddCommand(rebootCmd)
}
