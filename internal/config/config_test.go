package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test inside an empty directory so no .env or config/api.yaml leaks in.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("APP_ENV", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 20, cfg.DBMaxConnections())
	assert.Equal(t, "chat:realtime", cfg.Redis.Channel)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, int64(4096), cfg.WS.MaxMessageSize)
	assert.False(t, cfg.Production)
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: \":9000\"\nstore_driver: mongo\nkafka_brokers: [\"k1:9092\"]\nws_events_per_second: 5\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("SERVER_ADDR", ":7000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ServerAddr)
	assert.Equal(t, StoreMongo, cfg.StoreDriver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.WS.EventsPerSecond)
}

func TestLoadDotEnvDoesNotOverrideEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-file\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load()
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "STORE_DRIVER", cfgErr.Key)
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	chdirTemp(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "JWT_SECRET", cfgErr.Key)

	t.Setenv("JWT_SECRET", "prod-secret")
	_, err = Load()
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "DATABASE_URL", cfgErr.Key)

	t.Setenv("DATABASE_URL", "postgres://chat@db:5432/chat")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production)
}
