package config_test

import (
	"testing"
	"time"

	"github.com/goabstract/gitcore/ginternals/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg, err := config.LoadConfig(fs, "/repo/.git")
	require.NoError(t, err)
	assert.Equal(t, "master", cfg.DefaultBranch)
	assert.True(t, cfg.LogAllRefUpdates)
	assert.Equal(t, 10, cfg.MaxRefDepth)
	assert.Equal(t, 14*24*time.Hour, cfg.GCGracePeriod)
	assert.Equal(t, "/repo/.git/objects", cfg.ObjectDirPath)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	content := `[core]
	logallrefupdates = false
[init]
	defaultBranch = main
[gc]
	pruneExpire = 1h
`
	require.NoError(t, afero.WriteFile(fs, "/repo/.git/config", []byte(content), 0o644))

	cfg, err := config.LoadConfig(fs, "/repo/.git")
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.DefaultBranch)
	assert.False(t, cfg.LogAllRefUpdates)
	assert.Equal(t, time.Hour, cfg.GCGracePeriod)
}

func TestLoadConfigBadGrace(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/repo/.git/config", []byte("[gc]\npruneExpire = soon\n"), 0o644))

	_, err := config.LoadConfig(fs, "/repo/.git")
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg := config.NewDefault(fs, "/repo/.git")
	cfg.DefaultBranch = "main"
	cfg.GCGracePeriod = 2 * time.Hour
	cfg.LogAllRefUpdates = false
	require.NoError(t, cfg.Save())

	loaded, err := config.LoadConfig(fs, "/repo/.git")
	require.NoError(t, err)
	assert.Equal(t, "main", loaded.DefaultBranch)
	assert.Equal(t, 2*time.Hour, loaded.GCGracePeriod)
	assert.False(t, loaded.LogAllRefUpdates)
}
