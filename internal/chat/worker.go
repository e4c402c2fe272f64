package chat

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

const MaxTextRunes = 100

type WorkerConfig struct {
	BaseURL       string
	Token         string
	WatermarkPath string
	PollTimeout   time.Duration // long-poll timeout sent to the server
	CheckInterval time.Duration // pause between polls
	RetryDelay    time.Duration // pause after a transient failure
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 4 * time.Second
	}
	if c.WatermarkPath == "" {
		c.WatermarkPath = "chat_watermark.txt"
	}
	return c
}

// Worker emits one ChatMessage per new text update. The watermark is
// persisted before anything is published, so a restart never replays an
// update that was already handed to the orchestrator.
type Worker struct {
	cfg    WorkerConfig
	client *Client
	clock  clockwork.Clock
	logger *slog.Logger

	watermark int64
}

func NewWorker(cfg WorkerConfig, clock clockwork.Clock, logger *slog.Logger) *Worker {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Token, cfg.PollTimeout),
		clock:  clock,
		logger: logger.With("component", "chat"),
	}
}

// Run polls until ctx ends. Without a token it idles.
func (w *Worker) Run(ctx context.Context, bus types.Publisher) error {
	if w.cfg.Token == "" {
		w.logger.Info("no chat token configured, chat polling disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	if err := w.Init(ctx); err != nil {
		return err
	}

	for {
		msgs, err := w.PollOnce(ctx)
		switch {
		case err == nil:
		case fault.IsTransient(err):
			w.logger.Warn("chat poll", "err", err)
			if err := w.sleep(ctx, w.cfg.RetryDelay); err != nil {
				return err
			}
			continue
		default:
			return err
		}

		for _, m := range msgs {
			if err := bus.Publish(ctx, m); err != nil {
				return err
			}
		}
		if err := w.sleep(ctx, w.cfg.CheckInterval); err != nil {
			return err
		}
	}
}

// Init loads the watermark and logs the bot identity. A getMe failure is
// only logged.
func (w *Worker) Init(ctx context.Context) error {
	wm, err := LoadWatermark(w.cfg.WatermarkPath)
	if err != nil {
		return fault.Fatal("load watermark", err)
	}
	w.watermark = wm

	me, err := w.client.GetMe(ctx)
	if err != nil {
		w.logger.Warn("getMe failed", "err", err)
	} else {
		w.logger.Info("chat bot connected", "username", me.UserName, "id", me.ID, "watermark", wm)
	}
	return nil
}

// PollOnce fetches updates past the watermark, persists the new watermark
// and returns the qualifying messages.
func (w *Worker) PollOnce(ctx context.Context) ([]types.ChatMessage, error) {
	updates, err := w.client.GetUpdates(ctx, w.watermark, w.cfg.PollTimeout)
	if err != nil {
		return nil, err
	}

	next := w.watermark
	var out []types.ChatMessage
	for _, u := range updates {
		id := int64(u.UpdateID)
		if id < w.watermark {
			continue
		}
		next = max(next, id+1)
		if u.Message == nil {
			w.logger.Debug("skipping non-message update", "update_id", u.UpdateID)
			continue
		}
		var sender string
		if u.Message.From != nil {
			sender = u.Message.From.UserName
		}
		text := truncateRunes(u.Message.Text, MaxTextRunes)
		if sender == "" || text == "" {
			continue
		}
		w.logger.Info("chat message", "sender", sender, "text", text)
		out = append(out, types.ChatMessage{Sender: sender, Text: text})
	}

	if next > w.watermark {
		if err := SaveWatermark(w.cfg.WatermarkPath, next); err != nil {
			return nil, fault.Fatal("save watermark", err)
		}
		w.watermark = next
	}
	return out, nil
}

func (w *Worker) Watermark() int64 { return w.watermark }

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.clock.After(d):
		return nil
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
