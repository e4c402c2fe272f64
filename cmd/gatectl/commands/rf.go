package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
	"github.com/BrandonDHaskell/gatectl/internal/rf"
)

var (
	rfDuration time.Duration
	rfAny      bool
	rfPin      string
)

var rfTestCmd = &cobra.Command{
	Use:   "rf-test",
	Short: "Print decoded remote codes",
	Long: `Listen on the RF receiver pin and print every code that passes the
configured fingerprint. Use --any to print every decoded code when learning
a new remote.`,
	Args: cobra.NoArgs,
	RunE: runRFTest,
}

func init() {
	rfTestCmd.Flags().DurationVar(&rfDuration, "duration", 30*time.Second, "how long to listen")
	rfTestCmd.Flags().BoolVar(&rfAny, "any", false, "print every decoded code")
	rfTestCmd.Flags().StringVar(&rfPin, "pin", "", "receiver pin (default from config)")
	rootCmd.AddCommand(rfTestCmd)
}

// printPublisher stands in for the command bus and writes each trigger.
type printPublisher struct {
	w io.Writer
	n int
}

func (p *printPublisher) Publish(_ context.Context, ev types.Event) error {
	if t, ok := ev.(types.RFTrigger); ok {
		p.n++
		printStep(p.w, "code %d (protocol %d, pulse %dus)\n", t.Code, t.Protocol, t.PulseLength)
	}
	return nil
}

func runRFTest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pin := cfg.RF.Pin
	if rfPin != "" {
		pin = rfPin
	}
	if pin == "" {
		return fmt.Errorf("no rf pin configured")
	}

	fp := rf.AnyFingerprint
	if !rfAny {
		if fp, err = cfg.RF.Fingerprint(); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	ctx, cancel := context.WithTimeout(cmd.Context(), rfDuration)
	defer cancel()

	printStep(out, "listening on %s for %s\n", pin, rfDuration)
	pub := &printPublisher{w: out}
	w := rf.NewWorker(rf.WorkerConfig{Pin: pin, Fingerprint: fp, PollInterval: cfg.RF.PollInterval}, nil, nil)
	if err := w.Run(ctx, pub); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	printOK(out, "%d code(s) received\n", pub.n)
	return nil
}
