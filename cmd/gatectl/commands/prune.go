package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatectl/internal/gate/service"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete database rows older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if cfg.OpLog.SQLitePath == "" {
			return fmt.Errorf("no database configured")
		}
		if cfg.OpLog.RetentionDays <= 0 {
			printWarn(out, "retention disabled\n")
			return nil
		}

		cfg.OpLog.Redis.Addr = ""
		cfg.OpLog.File = ""
		sinks, err := openSinks(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer sinks.Close()

		p := service.NewRetentionPruner(sinks.pruners, service.RetentionConfig{
			RetentionDays: cfg.OpLog.RetentionDays,
		}, nil)
		n := p.PruneOnce(cmd.Context())
		printOK(out, "pruned %d row(s) older than %d days\n", n, cfg.OpLog.RetentionDays)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
