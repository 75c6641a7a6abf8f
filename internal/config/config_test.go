package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestLoad(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("AUTH_JWT_SECRET", testSecret)

		cfg, err := Load()
		req.NoError(err)
		req.Equal(":8080", cfg.APIAddr)
		req.Equal(BackendRedis, cfg.StorageBackend)
		req.Equal("localhost:6379", cfg.RedisAddr)
		req.Equal(24*time.Hour, cfg.AuthTokenTTL)
		req.Equal(64, cfg.SessionSendQueue)
		req.Equal(200, cfg.HistoryLimit)
		req.Equal(30*time.Second, cfg.ShutdownTimeout)
		req.Equal(defaultAllowedOrigins, cfg.AllowedOrigins())
		req.Empty(cfg.SeedUsers())
	})

	t.Run("should read overrides", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("AUTH_JWT_SECRET", testSecret)
		t.Setenv("STORAGE_BACKEND", "sqlite")
		t.Setenv("SQLITE_PATH", "/tmp/x.db")
		t.Setenv("SESSION_SEND_QUEUE", "8")
		t.Setenv("AUTH_TOKEN_TTL", "15m")
		t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
		t.Setenv("SEED_USERS", "alice,bob")

		cfg, err := Load()
		req.NoError(err)
		req.Equal(BackendSQLite, cfg.StorageBackend)
		req.Equal("/tmp/x.db", cfg.SQLitePath)
		req.Equal(8, cfg.SessionOptions(nil).SendQueue)
		req.Equal(15*time.Minute, cfg.AuthTokenTTL)
		req.Equal([]string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
		req.Equal([]string{"alice", "bob"}, cfg.SeedUsers())
	})

	t.Run("should reject missing secret", func(t *testing.T) {
		t.Setenv("AUTH_JWT_SECRET", "")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("should reject unknown backend", func(t *testing.T) {
		t.Setenv("AUTH_JWT_SECRET", testSecret)
		t.Setenv("STORAGE_BACKEND", "postgres")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestSplitCSV(t *testing.T) {
	req := require.New(t)
	req.Equal([]string{"x"}, splitCSV("", []string{"x"}))
	req.Equal([]string{"x"}, splitCSV(" , ", []string{"x"}))
	req.Equal([]string{"a", "b"}, splitCSV("a, b", nil))
}
