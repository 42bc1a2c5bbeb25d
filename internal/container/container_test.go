package container

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/throwbridge/throwbridge/internal/config"
)

func TestNew_WiresServices(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.ItemService.Port = 4321

	c, err := New(&cfg, filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Sink().Close() })

	assert.Same(t, &cfg, c.Config())
	assert.NotNil(t, c.Metrics())
	assert.NotNil(t, c.Store())
	assert.NotNil(t, c.Watcher())
	assert.False(t, c.Scheduler().Enabled())
	assert.Equal(t, 4321, c.Controller().ItemServicePort())
	assert.Equal(t, filepath.Join(dir, "items_list.txt"), c.Store().SnapshotPath("items"))
}

func TestNew_InvalidSchedule(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Refresh.Schedule = "not a schedule"

	_, err := New(&cfg, filepath.Join(dir, "config.json"))
	assert.Error(t, err)
}

func TestNew_WatcherOptional(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir

	c, err := New(&cfg, filepath.Join(dir, "missing", "config.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Sink().Close() })

	assert.Nil(t, c.Watcher())
}
