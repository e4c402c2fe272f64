// Package redisstream mirrors operation log entries onto a Redis stream so
// a remote dashboard can follow gate activity. All keys are namespaced with
// the site name.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
)

// DefaultMaxLen caps the stream length (approximate trimming).
const DefaultMaxLen = 10000

type OperationLogStore struct {
	rdb    *redis.Client
	site   string
	maxLen int64
}

// NewOperationLogStore connects lazily; use Ping to verify reachability.
func NewOperationLogStore(opts *redis.Options, site string, maxLen int64) (*OperationLogStore, error) {
	if site == "" {
		return nil, errors.New("redis site name cannot be empty")
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &OperationLogStore{rdb: redis.NewClient(opts), site: site, maxLen: maxLen}, nil
}

func (s *OperationLogStore) StreamKey() string { return fmt.Sprintf("gatectl:%s:oplog", s.site) }

func (s *OperationLogStore) EventsChannel() string {
	return fmt.Sprintf("gatectl:%s:oplog_events", s.site)
}

func (s *OperationLogStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *OperationLogStore) Close() error { return s.rdb.Close() }

type wireEntry struct {
	Timestamp   time.Time `json:"ts"`
	Kind        string    `json:"kind"`
	Channel     string    `json:"channel"`
	Identity    string    `json:"identity"`
	Text        string    `json:"text,omitempty"`
	Action      string    `json:"action,omitempty"`
	Granted     bool      `json:"granted"`
	SoundPlayed bool      `json:"sound_played"`
}

// Append adds e to the stream and then publishes it on the events channel.
// A publish failure is reported but the stream entry stays.
func (s *OperationLogStore) Append(ctx context.Context, e store.OperationLogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.StreamKey(),
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"ts_ms":        strconv.FormatInt(e.Timestamp.UTC().UnixMilli(), 10),
			"kind":         string(e.Kind),
			"channel":      e.Channel,
			"identity":     e.Identity,
			"text":         e.Text,
			"action":       e.Action,
			"granted":      strconv.FormatBool(e.Granted),
			"sound_played": strconv.FormatBool(e.SoundPlayed),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd: %w", err)
	}

	payload, err := json.Marshal(wireEntry{
		Timestamp:   e.Timestamp.UTC(),
		Kind:        string(e.Kind),
		Channel:     e.Channel,
		Identity:    e.Identity,
		Text:        e.Text,
		Action:      e.Action,
		Granted:     e.Granted,
		SoundPlayed: e.SoundPlayed,
	})
	if err != nil {
		return fmt.Errorf("marshal oplog event: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.EventsChannel(), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
