// Package chat polls a Telegram bot for text commands.
package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
)

const DefaultBaseURL = "https://api.telegram.org"

// Client wraps the bot API for getMe and long-poll getUpdates. Calls are
// serialised so each request carries the caller's context.
type Client struct {
	token string
	bot   *tgbotapi.BotAPI
	http  *ctxClient

	mu sync.Mutex
}

// ctxClient attaches the context of the call in flight to every request the
// bot library makes.
type ctxClient struct {
	hc  *http.Client
	ctx context.Context
}

func (c *ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.hc.Do(req.WithContext(c.ctx))
}

// NewClient builds a client without contacting the server.
func NewClient(baseURL, token string, pollTimeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := &ctxClient{
		hc:  &http.Client{Timeout: pollTimeout + 10*time.Second},
		ctx: context.Background(),
	}
	bot := &tgbotapi.BotAPI{Token: token, Client: hc, Buffer: 100}
	bot.SetAPIEndpoint(strings.TrimRight(baseURL, "/") + "/bot%s/%s")
	return &Client{token: token, bot: bot, http: hc}
}

func (c *Client) GetMe(ctx context.Context) (tgbotapi.User, error) {
	var me tgbotapi.User
	err := c.do(ctx, "getMe", func() (err error) {
		me, err = c.bot.GetMe()
		return err
	})
	return me, err
}

// GetUpdates long-polls for message updates with update_id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(int(offset))
	cfg.Timeout = int(timeout / time.Second)
	cfg.AllowedUpdates = []string{"message"}

	var out []tgbotapi.Update
	err := c.do(ctx, "getUpdates", func() (err error) {
		out, err = c.bot.GetUpdates(cfg)
		return err
	})
	return out, err
}

// do runs fn with ctx bound to the HTTP client and classifies its error.
// Every returned error has the token scrubbed.
func (c *Client) do(ctx context.Context, method string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.http.ctx = ctx
	defer func() { c.http.ctx = context.Background() }()

	err := fn()
	switch {
	case err == nil:
		return nil
	case isTimeout(err):
		return fault.Transient(method, redact(err, c.token))
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fault.Fatal(method, redact(err, c.token))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// redactedError hides the bot token from the message but keeps the chain
// so errors.Is and errors.As still see the cause.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}
