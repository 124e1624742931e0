package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "REDIS_ADDR", "KAFKA_BROKERS", "CART_LOCK_TTL", "SEED_CATALOG"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, 10*time.Second, cfg.Business.CartLockTTL)
	assert.True(t, cfg.Business.SeedCatalog)
	assert.Equal(t, "commerce-service", cfg.Auth.JWTIssuer)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("CART_LOCK_TTL", "3")
	t.Setenv("SHUTDOWN_TIMEOUT", "1500ms")
	t.Setenv("CHECKOUT_RETRY_ATTEMPTS", "5")
	t.Setenv("SEED_CATALOG", "false")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")

	cfg := Load()

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Business.CartLockTTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5, cfg.Business.CheckoutRetryAttempts)
	assert.False(t, cfg.Business.SeedCatalog)
	assert.Equal(t, 0.25, cfg.Observ.TraceSampleRatio)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("AUTO_MIGRATE", "sometimes")
	t.Setenv("JWT_TTL", "forever")

	cfg := Load()

	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}
