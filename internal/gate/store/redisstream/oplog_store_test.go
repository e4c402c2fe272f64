package redisstream_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store/redisstream"
)

func TestOperationLogStore_AppendWritesStreamAndPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := redisstream.NewOperationLogStore(&redis.Options{Addr: mr.Addr()}, "north-gate", 0)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, s.EventsChannel())
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	ts := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, store.OperationLogEntry{
		Timestamp: ts, Kind: store.KindMessage, Channel: "chat",
		Identity: "alice", Text: "open", Action: "open", Granted: true,
	}))

	msgs, err := sub.XRange(ctx, "gatectl:north-gate:oplog", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "msg", msgs[0].Values["kind"])
	assert.Equal(t, "alice", msgs[0].Values["identity"])
	assert.Equal(t, "true", msgs[0].Values["granted"])

	select {
	case m := <-ps.Channel():
		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &got))
		assert.Equal(t, "chat", got["channel"])
		assert.Equal(t, true, got["granted"])
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

func TestNewOperationLogStore_RequiresSite(t *testing.T) {
	_, err := redisstream.NewOperationLogStore(&redis.Options{Addr: "localhost:0"}, "", 0)
	assert.Error(t, err)
}
