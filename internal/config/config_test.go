package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8585", cfg.Port)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "demo", cfg.DemoUser)
	assert.False(t, cfg.CookieSecure)
	assert.Len(t, cfg.CSRFKey, 32, "random development key")
	assert.Len(t, cfg.SessionKey, 32, "random development key")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	t.Setenv(FileEnv, "")
	t.Setenv("SHOP_PORT", "9090")
	t.Setenv("SHOP_STORAGE", "redis")
	t.Setenv("SHOP_REDIS_ADDR", "cache:6379")
	t.Setenv("SHOP_COOKIE_SECURE", "true")
	t.Setenv("SHOP_SESSION_TTL", "90m")
	t.Setenv("SHOP_CSRF_KEY", key)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StorageRedis, cfg.Storage)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, 90*time.Minute, cfg.SessionTTL)
	assert.Equal(t, []byte(strings.Repeat("k", 32)), cfg.CSRFKey)
}

func TestLoadConfig_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7070\"\nstorage: memory\nlog_level: debug\n"), 0o600))
	t.Setenv(FileEnv, path)
	t.Setenv("SHOP_LOG_LEVEL", "warn")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "warn", cfg.LogLevel, "env wins over file")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_InvalidPortFallsBack(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("SHOP_PORT", "eighty")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8585", cfg.Port)
}

func TestLoadConfig_ShortKeyReplaced(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("SHOP_SESSION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Len(t, cfg.SessionKey, 32)
	assert.NotEqual(t, []byte("short"), cfg.SessionKey)
}

func TestLoadConfig_UnknownStorage(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("SHOP_STORAGE", "mongo")

	_, err := LoadConfig()
	assert.Error(t, err)
}
