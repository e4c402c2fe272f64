package commands

import (
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/gatectl/internal/chat"
)

var readChatCmd = &cobra.Command{
	Use:   "read-chat",
	Short: "Poll the chat bot once and print new messages",
	Long: `Poll the chat bot once from the stored watermark and print every
qualifying message. The watermark advances exactly as it does under "run".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if cfg.Chat.Token == "" {
			printWarn(out, "no chat token configured\n")
			return nil
		}

		w := chat.NewWorker(chat.WorkerConfig{
			BaseURL:       cfg.Chat.BaseURL,
			Token:         cfg.Chat.Token,
			WatermarkPath: cfg.Chat.WatermarkFile,
			PollTimeout:   cfg.Chat.PollTimeout,
		}, nil, nil)
		if err := w.Init(cmd.Context()); err != nil {
			return err
		}
		msgs, err := w.PollOnce(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range msgs {
			printStep(out, "%s: %s\n", m.Sender, m.Text)
		}
		printOK(out, "%d message(s), watermark %d\n", len(msgs), w.Watermark())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readChatCmd)
}
