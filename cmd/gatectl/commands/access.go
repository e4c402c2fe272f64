package commands

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatectl/internal/db"
	"github.com/BrandonDHaskell/gatectl/internal/gate/service"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store/sqlite"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

var (
	errDenied     = errors.New("access denied")
	errUSBMissing = errors.New("required usb devices missing")
)

var (
	checkChat bool
	checkText string
	checkDays int
)

var checkAccessCmd = &cobra.Command{
	Use:   "check-access <identity>",
	Short: "Check a phone number or chat username against the whitelists",
	Long: `Check an identity against the configured whitelist. Phone numbers are
matched in every local and international form. With --text the command
also shows what the lexicon would do with that message.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckAccess,
}

func init() {
	checkAccessCmd.Flags().BoolVar(&checkChat, "chat", false, "identity is a chat username, not a phone number")
	checkAccessCmd.Flags().StringVar(&checkText, "text", "", "message text to parse with the lexicon")
	checkAccessCmd.Flags().IntVar(&checkDays, "history-days", 30, "days of granted history to count from the database")
	rootCmd.AddCommand(checkAccessCmd)
}

func runCheckAccess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	identity := args[0]

	path := cfg.Access.PhoneWhitelist
	if checkChat {
		path = cfg.Access.ChatWhitelist
	}
	access := service.NewAccessControl(service.PhonePlan{
		CountryCode: cfg.Access.CountryCode,
		TrunkPrefix: cfg.Access.TrunkPrefix,
	}, nil)

	if checkText != "" {
		lex, err := newLexicon(cfg)
		if err != nil {
			return err
		}
		c := lex.Parse(checkText)
		switch {
		case c.Action == types.ActionNone:
			printStep(out, "%q is not a command\n", checkText)
		case c.Duration > 0:
			printStep(out, "%q -> %s for %s\n", checkText, c.Action, c.Duration)
		default:
			printStep(out, "%q -> %s\n", checkText, c.Action)
		}
	}

	ok, err := access.Check(identity, path, !checkChat)
	if err != nil {
		return err
	}

	if n, err := grantedHistory(cmd.Context(), cfg.OpLog.SQLitePath, identity); err == nil && n >= 0 {
		printStep(out, "%d granted in the last %d days\n", n, checkDays)
	}

	if !ok {
		printErr(out, "%s denied (%s)\n", identity, path)
		return errDenied
	}
	printOK(out, "%s granted (%s)\n", identity, path)
	return nil
}

// grantedHistory returns -1 when there is no database to ask.
func grantedHistory(ctx context.Context, path, identity string) (int, error) {
	if path == "" {
		return -1, nil
	}
	if _, err := os.Stat(path); err != nil {
		return -1, nil
	}
	conn, err := db.Open(ctx, db.Config{Path: path})
	if err != nil {
		return -1, err
	}
	defer conn.Close()
	w := db.NewWorker(conn)
	defer w.Close()

	since := time.Now().AddDate(0, 0, -checkDays)
	return sqlite.NewOperationLogStore(conn, w).CountGranted(ctx, identity, since)
}
