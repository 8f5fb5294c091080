package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "SHOP_"
	// FileEnv names an optional YAML file loaded between defaults and env.
	FileEnv = "SHOP_CONFIG_FILE"

	defaultPort = "8585"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	Port          string        `koanf:"port"`
	DBPath        string        `koanf:"db_path"`
	Storage       string        `koanf:"storage"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	CookieDomain  string        `koanf:"cookie_domain"`
	CookieSecure  bool          `koanf:"cookie_secure"`
	SessionTTL    time.Duration `koanf:"session_ttl"`
	LogLevel      string        `koanf:"log_level"`
	LogFile       string        `koanf:"log_file"`
	DemoUser      string        `koanf:"demo_user"`
	DemoPassword  string        `koanf:"demo_password"`

	// Raw base64 values; decoded into CSRFKey and SessionKey.
	CSRFKeyB64    string `koanf:"csrf_key"`
	SessionKeyB64 string `koanf:"session_key"`

	CSRFKey    []byte `koanf:"-"`
	SessionKey []byte `koanf:"-"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":          defaultPort,
		"db_path":       "./minishop.db",
		"storage":       StorageSQLite,
		"redis_addr":    "localhost:6379",
		"cookie_secure": false,
		"session_ttl":   "24h",
		"log_level":     "info",
		"demo_user":     "demo",
		"demo_password": "demo",
	}
}

// LoadConfig reads defaults, then the YAML file named by SHOP_CONFIG_FILE if
// set, then SHOP_* environment variables (SHOP_DB_PATH -> db_path).
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		if s == FileEnv {
			return ""
		}
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("env overlay: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	cfg.CSRFKey = decodeKey("CSRF key", cfg.CSRFKeyB64)
	cfg.SessionKey = decodeKey("Session key", cfg.SessionKeyB64)

	// Make sure port is valid
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		slog.Error("Invalid port. Falling back to default.", "port", cfg.Port, "default", defaultPort)
		cfg.Port = defaultPort
	}

	switch cfg.Storage {
	case StorageSQLite, StorageRedis, StorageMemory:
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want sqlite, redis or memory)", cfg.Storage)
	}

	return cfg, nil
}

// decodeKey decodes a base64 key of at least 32 bytes. A missing or weak key
// is replaced with a random one, which changes on every restart.
func decodeKey(name, encoded string) []byte {
	if encoded == "" {
		slog.Warn(name + " not set. Generating a random key for development. This key will change on each restart. PLEASE SET IT IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(decoded) < 32 {
		slog.Warn(name + " is invalid or too short (min 32 bytes). Generating a random key for development. PLEASE SET A SECURE KEY IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	return decoded
}

// generateRandomBytes generates a random byte slice of specified length
// using crypto/rand.
func generateRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing leaves no safe key to hand out.
		panic(fmt.Sprintf("config: read random bytes: %v", err))
	}
	return b
}
