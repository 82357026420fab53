package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastiangx/faultyai/pkg/render"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInitConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.FileExists(t, path)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), loaded)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
[engine]
tab_size = 4
layout = "fallback"
notify = false

[server]
max_documents = 3
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.TabSize)
	assert.Equal(t, "fallback", cfg.Engine.Layout)
	assert.False(t, cfg.Engine.Notify)
	assert.True(t, cfg.Engine.FormatAfterAccept, "missing keys keep defaults")
	assert.Equal(t, 3, cfg.Server.MaxDocuments)
	assert.True(t, cfg.CLI.ShowDiff)
}

func TestLoadConfigPartialRecovery(t *testing.T) {
	// tab_size has the wrong type, which fails the struct decode but not the generic one.
	path := writeConfig(t, `
[engine]
tab_size = "wide"
layout = "fallback"

[cli]
color = false
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Engine.TabSize)
	assert.Equal(t, "fallback", cfg.Engine.Layout)
	assert.False(t, cfg.CLI.Color)
}

func TestLoadConfigUnparseable(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "[engine\nthis is not toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestNormalize(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
[engine]
tab_size = 0
layout = "sideways"
format_delay_ms = -5

[server]
max_documents = -1
`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Engine.TabSize)
	assert.Equal(t, "spacer", cfg.Engine.Layout)
	assert.Equal(t, 50, cfg.Engine.FormatDelayMs)
	assert.Equal(t, 32, cfg.Server.MaxDocuments)
}

func TestLoadConfigWithPriorityCustomPath(t *testing.T) {
	path := writeConfig(t, "[engine]\ntab_size = 8\n")
	cfg, used, err := LoadConfigWithPriority(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, 8, cfg.Engine.TabSize)
}

func TestLoadConfigWithPriorityFallsBackToDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("APPDATA", dir)
	t.Setenv("HOME", dir)

	cfg, used, err := LoadConfigWithPriority(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, filepath.Join(dir, "faultyai", "config.toml"), used)
	assert.FileExists(t, used)
}

func TestUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()

	tab, layout, notify := 4, "fallback", false
	require.NoError(t, cfg.Update(path, &tab, &layout, nil, &notify))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Engine.TabSize)
	assert.Equal(t, "fallback", loaded.Engine.Layout)
	assert.False(t, loaded.Engine.Notify)
	assert.True(t, loaded.Engine.FormatAfterAccept)
}

func TestSessionOptions(t *testing.T) {
	opts := DefaultConfig().Engine.SessionOptions()
	assert.Equal(t, render.PolicySpacer, opts.Policy)
	assert.Equal(t, 50*time.Millisecond, opts.FormatDelay)
	assert.True(t, opts.FormatAfterAccept)
	assert.True(t, opts.Notify)
	assert.Equal(t, 2, opts.TabSize)

	e := EngineConfig{Layout: "fallback", FormatDelayMs: -1}
	assert.Equal(t, render.PolicyFallback, e.SessionOptions().Policy)
	assert.Zero(t, e.SessionOptions().FormatDelay)
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "[engine]\ntab_size = 2\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { got <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	cfg := DefaultConfig()
	cfg.Engine.TabSize = 6
	require.NoError(t, SaveConfig(cfg, path))

	select {
	case c := <-got:
		assert.Equal(t, 6, c.Engine.TabSize)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not picked up")
	}

	cancel()
	require.NoError(t, <-done)
}
