package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatectl/internal/db"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
	"github.com/BrandonDHaskell/gatectl/internal/gate/store/sqlite"
	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

type testEnv struct {
	dir    string
	config string
	dbPath string
}

func newTestEnv(t *testing.T, withDB bool) testEnv {
	t.Helper()
	color.NoColor = true

	dir := t.TempDir()
	env := testEnv{dir: dir, config: filepath.Join(dir, "gatectl.yml")}
	phones := filepath.Join(dir, "phones.txt")
	users := filepath.Join(dir, "users.txt")
	require.NoError(t, os.WriteFile(phones, []byte("0501234567\n"), 0o644))
	require.NoError(t, os.WriteFile(users, []byte("alice\n"), 0o644))

	if withDB {
		env.dbPath = filepath.Join(dir, "gate.db")
	}
	cfg := "access:\n" +
		"  phone_whitelist: " + phones + "\n" +
		"  chat_whitelist: " + users + "\n" +
		"oplog:\n" +
		"  sqlite_path: \"" + env.dbPath + "\"\n" +
		"  file: \"\"\n"
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))
	return env
}

// execute runs the root command with args and resets package flag state
// afterwards.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	if args == nil {
		args = []string{}
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configPath = ""
		checkChat = false
		checkText = ""
		checkDays = 30
		rootCmd.SetArgs([]string{})
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_ShowsHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "check-access")
	assert.Contains(t, out, "rf-test")
}

func TestRoot_UnknownCommand(t *testing.T) {
	_, err := execute(t, "open-sesame")
	assert.Error(t, err)
}

func TestCheckAccess_PhoneGranted(t *testing.T) {
	env := newTestEnv(t, false)
	out, err := execute(t, "-c", env.config, "check-access", "0501234567")
	require.NoError(t, err)
	assert.Contains(t, out, "0501234567 granted")
}

func TestCheckAccess_ChatDenied(t *testing.T) {
	env := newTestEnv(t, false)
	out, err := execute(t, "-c", env.config, "check-access", "--chat", "mallory")
	assert.ErrorIs(t, err, errDenied)
	assert.Contains(t, out, "mallory denied")
}

func TestCheckAccess_ParsesText(t *testing.T) {
	env := newTestEnv(t, false)
	out, err := execute(t, "-c", env.config, "check-access", "--chat", "--text", "42", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "open for 42s")
	assert.Contains(t, out, "alice granted")
}

func TestCheckAccess_CountsHistory(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	conn, err := db.Open(ctx, db.Config{Path: env.dbPath})
	require.NoError(t, err)
	w := db.NewWorker(conn)
	ops := sqlite.NewOperationLogStore(conn, w)
	for _, granted := range []bool{true, true, false} {
		require.NoError(t, ops.Append(ctx, store.OperationLogEntry{
			Timestamp: time.Now().Add(-time.Hour),
			Kind:      store.KindMessage,
			Channel:   "chat",
			Identity:  "alice",
			Granted:   granted,
		}))
	}
	w.Close()
	require.NoError(t, conn.Close())

	out, err := execute(t, "-c", env.config, "check-access", "--chat", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "2 granted in the last 30 days")
}

func TestPrune_RequiresDatabase(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := execute(t, "-c", env.config, "prune")
	assert.ErrorContains(t, err, "no database configured")
}

func TestPrune_DeletesOldRows(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	conn, err := db.Open(ctx, db.Config{Path: env.dbPath})
	require.NoError(t, err)
	w := db.NewWorker(conn)
	ops := sqlite.NewOperationLogStore(conn, w)
	require.NoError(t, ops.Append(ctx, store.OperationLogEntry{
		Timestamp: time.Now().AddDate(-2, 0, 0),
		Kind:      store.KindCall,
		Channel:   "call",
		Identity:  "0501234567",
	}))
	require.NoError(t, ops.Append(ctx, store.OperationLogEntry{Kind: store.KindCall, Channel: "call", Identity: "0501234567"}))
	w.Close()
	require.NoError(t, conn.Close())

	out, err := execute(t, "-c", env.config, "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 1 row(s)")
}

func TestDated(t *testing.T) {
	day := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "logs/ctl_20240309.log", dated("logs/ctl_%s.log", day))
	assert.Equal(t, "plain.log", dated("plain.log", day))
}

func TestWorkerSpecs_SkipsModemWithoutDevice(t *testing.T) {
	env := newTestEnv(t, false)
	configPath = env.config
	t.Cleanup(func() { configPath = "" })
	cfg, err := loadConfig()
	require.NoError(t, err)

	cfg.Modem.Device = ""
	specs, err := workerSpecs(cfg, nil, nil, nil)
	require.NoError(t, err)

	kinds := specKinds(specs)
	assert.Len(t, kinds, 3)
	assert.NotContains(t, kinds, types.WorkerModem)
}
