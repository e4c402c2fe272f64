package commands

import (
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatectl/internal/probe"
)

var temperatureCmd = &cobra.Command{
	Use:   "temperature",
	Short: "Print the board temperature",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		v, err := newTemperature(cfg.Health.ThermalPath).Temperature(cmd.Context())
		if err != nil {
			return err
		}
		printOK(cmd.OutOrStdout(), "%.1f'C\n", v)
		return nil
	},
}

var validateUSBCmd = &cobra.Command{
	Use:   "validate-usb",
	Short: "Check that every required USB device is attached",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		missing, err := probe.NewUSB(cfg.Health.RequiredUSB).CheckUSB(cmd.Context())
		if err != nil {
			return err
		}
		gone := make(map[string]bool, len(missing))
		for _, id := range missing {
			gone[id] = true
		}
		for _, id := range cfg.Health.RequiredUSB {
			if gone[id] {
				printErr(out, "%s missing\n", id)
			} else {
				printOK(out, "%s present\n", id)
			}
		}
		if len(missing) > 0 {
			return errUSBMissing
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(temperatureCmd, validateUSBCmd)
}
