package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, uint64(1000), cfg.Polling.WaitMS)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wise.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
rcon:
  address: "10.0.0.5:28016"
  password: "secret"
polling:
  wait_ms: 250
auth:
  tokens:
    - name: "bot"
      value: "token-value"
      perms:
        read_rcon_events: true
        write_rcon: false
exporting:
  websocket:
    enabled: true
    address: "0.0.0.0:3030"
logging:
  level: 1
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:28016", cfg.Rcon.Address)
	assert.Equal(t, "secret", cfg.Rcon.Password)
	assert.Equal(t, uint64(250), cfg.Polling.WaitMS)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, uint64(100), cfg.Polling.CooldownMS)
	assert.True(t, cfg.Exporting.WebSocket.Enabled)
	assert.Equal(t, 1, cfg.Logging.Level)

	token, ok := cfg.Token("token-value")
	require.True(t, ok)
	assert.Equal(t, "bot", token.Name)
	assert.True(t, token.Perms.ReadRconEvents)
	assert.False(t, token.Perms.WriteRcon)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wise.yml")
	require.NoError(t, os.WriteFile(path, []byte("rcon: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestToken_CaseSensitive(t *testing.T) {
	cfg := Default()
	cfg.Auth.Tokens = []TokenConfig{{Name: "bot", Value: "Secret"}}

	_, ok := cfg.Token("secret")
	assert.False(t, ok)

	_, ok = cfg.Token("Secret")
	assert.True(t, ok)
}

func TestStore_SwapsAtomically(t *testing.T) {
	store := NewStore(Default())
	assert.Equal(t, uint64(1000), store.Get().Polling.WaitMS)

	next := Default()
	next.Polling.WaitMS = 42
	store.Set(next)
	assert.Equal(t, uint64(42), store.Get().Polling.WaitMS)
}

func TestStore_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wise.yml")
	require.NoError(t, os.WriteFile(path, []byte("polling:\n  wait_ms: 100\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = store.Watch(ctx, slog.Default(), path)
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("polling:\n  wait_ms: 200\n"), 0o644))

	assert.Eventually(t, func() bool {
		return store.Get().Polling.WaitMS == 200
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStore_WatchKeepsPreviousOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wise.yml")
	require.NoError(t, os.WriteFile(path, []byte("polling:\n  wait_ms: 100\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = store.Watch(ctx, slog.Default(), path)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("polling: ["), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, uint64(100), store.Get().Polling.WaitMS)
}
