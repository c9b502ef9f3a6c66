package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(":8080", cfg.Server.Port)
	req.Equal("postgres", cfg.Store.Driver)
	req.Equal("memory", cfg.Presence.Backend)
	req.Equal(7*24*time.Hour, cfg.JWT.ExpiresIn)
	req.Equal(256, cfg.WebSocket.SendBuffer)
	req.Equal(50, cfg.History.DefaultLimit)
	req.Equal([]string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORE_DRIVER", "badger")
	t.Setenv("PRESENCE_BACKEND", "redis")
	t.Setenv("WS_PONG_WAIT", "30s")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,https://collab.example")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("badger", cfg.Store.Driver)
	req.Equal("redis", cfg.Presence.Backend)
	req.Equal(30*time.Second, cfg.WebSocket.PongWait)
	req.Equal([]string{"http://localhost:3000", "https://collab.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load()
	require.ErrorContains(t, err, "STORE_DRIVER")
}
