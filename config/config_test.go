package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ripple "github.com/Tap30/ripple-core-go"
	"github.com/Tap30/ripple-core-go/adapters"
	"github.com/Tap30/ripple-core-go/identity"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ripple.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, "US", cfg.ServerZone)
	assert.Equal(t, ripple.DefaultInstanceName, cfg.InstanceName)
	assert.Equal(t, ripple.DefaultFlushQueueSize, cfg.FlushQueueSize)
	assert.Equal(t, ripple.DefaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Nil(t, cfg.Plan)
}

func TestLoad_WithConfigFile(t *testing.T) {
	path := writeConfig(t, `api_key: file-key
server_zone: eu
flush_queue_size: 50
flush_interval: 5s
min_id_length: 4
log_level: debug
plan:
  branch: main
  version_id: v1
storage:
  type: file
  path: /tmp/ripple-events
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "eu", cfg.ServerZone)
	assert.Equal(t, 50, cfg.FlushQueueSize)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, 4, cfg.MinIDLength)
	assert.Equal(t, &ripple.Plan{Branch: "main", VersionID: "v1"}, cfg.Plan)
	assert.Equal(t, StorageConfig{Type: StorageFile, Path: "/tmp/ripple-events"}, cfg.Storage)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "api_key: file-key\nflush_queue_size: 50\n")
	t.Setenv("RIPPLE_API_KEY", "env-key")
	t.Setenv("RIPPLE_FLUSH_INTERVAL", "250ms")
	t.Setenv("RIPPLE_STORAGE_TYPE", "badger")
	t.Setenv("RIPPLE_OFFLINE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, 50, cfg.FlushQueueSize)
	assert.Equal(t, 250*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, StorageBadger, cfg.Storage.Type)
	assert.True(t, cfg.Offline)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFileConfig_Configuration(t *testing.T) {
	t.Run("should map settings", func(t *testing.T) {
		fc := &FileConfig{
			APIKey:          "key",
			ServerZone:      "eu",
			InstanceName:    "cli",
			LogLevel:        "info",
			FlushQueueSize:  20,
			FlushInterval:   time.Second,
			Compression:     true,
			ThrottleBackoff: time.Minute,
		}

		cfg, err := fc.Configuration()
		require.NoError(t, err)

		assert.Equal(t, ripple.ServerZoneEU, cfg.ServerZone)
		assert.Equal(t, adapters.LogLevelInfo, cfg.LogLevel)
		assert.True(t, cfg.EnableRequestBodyCompression)
		assert.Equal(t, time.Minute, cfg.ThrottleBackoff)
		assert.Nil(t, cfg.Adapters.StorageAdapter)
		assert.Nil(t, cfg.IdentityStorage)
		assert.Equal(t, ripple.EUDefaultAPIHost, cfg.Endpoint())
	})

	t.Run("should open file storage", func(t *testing.T) {
		fc := &FileConfig{APIKey: "key", Storage: StorageConfig{Type: StorageFile, Path: t.TempDir()}}

		cfg, err := fc.Configuration()
		require.NoError(t, err)
		t.Cleanup(func() { _ = cfg.Adapters.StorageAdapter.Close() })

		assert.IsType(t, &adapters.FileStorageAdapter{}, cfg.Adapters.StorageAdapter)
	})

	t.Run("should open in-memory badger without a path", func(t *testing.T) {
		fc := &FileConfig{APIKey: "key", Storage: StorageConfig{Type: StorageBadger}}

		cfg, err := fc.Configuration()
		require.NoError(t, err)
		t.Cleanup(func() { _ = cfg.Adapters.StorageAdapter.Close() })

		assert.IsType(t, &adapters.BadgerStorageAdapter{}, cfg.Adapters.StorageAdapter)
	})

	t.Run("should reject unknown storage", func(t *testing.T) {
		_, err := (&FileConfig{Storage: StorageConfig{Type: "s3"}}).Configuration()
		assert.ErrorContains(t, err, "unknown storage type")
	})

	t.Run("should require a path for file storage", func(t *testing.T) {
		_, err := (&FileConfig{Storage: StorageConfig{Type: StorageFile}}).Configuration()
		assert.Error(t, err)
	})

	t.Run("should use file identity storage", func(t *testing.T) {
		dir := t.TempDir()
		fc := &FileConfig{APIKey: "key", InstanceName: "cli", Identity: IdentityConfig{Dir: dir}}

		cfg, err := fc.Configuration()
		require.NoError(t, err)

		ids, ok := cfg.IdentityStorage.(*identity.FileStorage)
		require.True(t, ok)
		assert.Equal(t, filepath.Join(dir, identity.DefaultFilePrefix+"-cli.yaml"), ids.Path())
	})
}
