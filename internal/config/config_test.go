package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"REF_LATITUDE", "REF_LONGITUDE", "MAX_DISTANCE_M", "DB_DRIVER", "QUEUE_BACKEND", "PUBLIC_URL", "REPLIT_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, 48.8566, cfg.RefLatitude)
	assert.Equal(t, 2.3522, cfg.RefLongitude)
	assert.Equal(t, 50.0, cfg.MaxDistanceM)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "math1", cfg.DefaultCourse)
	assert.Equal(t, 50, cfg.AdminListLimit)
	assert.Empty(t, cfg.PublicURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REF_LATITUDE", "45.5")
	t.Setenv("REF_LONGITUDE", "-73.56")
	t.Setenv("MAX_DISTANCE_M", "120.5")
	t.Setenv("ADMIN_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("REPLIT_URL", "https://presence.example.dev")

	cfg := Load()
	assert.Equal(t, 45.5, cfg.RefLatitude)
	assert.Equal(t, -73.56, cfg.RefLongitude)
	assert.Equal(t, 120.5, cfg.MaxDistanceM)
	assert.Equal(t, 30*time.Minute, cfg.AdminTTL)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.Equal(t, "https://presence.example.dev", cfg.PublicURL)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_DISTANCE_M", "fifty")
	t.Setenv("ADMIN_TTL", "soon")
	t.Setenv("ADMIN_LIST_LIMIT", "many")

	cfg := Load()
	assert.Equal(t, 50.0, cfg.MaxDistanceM)
	assert.Equal(t, 8*time.Hour, cfg.AdminTTL)
	assert.Equal(t, 50, cfg.AdminListLimit)
}

func TestValidate(t *testing.T) {
	base := App{RefLatitude: 1, RefLongitude: 1, MaxDistanceM: 50, DBDriver: "sqlite", QueueBackend: "none"}
	require.NoError(t, base.Validate())

	bad := base
	bad.MaxDistanceM = -1
	assert.Error(t, bad.Validate())

	bad = base
	bad.RefLatitude = 91
	assert.Error(t, bad.Validate())

	bad = base
	bad.RefLongitude = -181
	assert.Error(t, bad.Validate())

	bad = base
	bad.DBDriver = "mysql"
	assert.Error(t, bad.Validate())

	bad = base
	bad.QueueBackend = "kafka"
	assert.Error(t, bad.Validate())
}

func TestValidate_ProductionAdminNeedsSigningKey(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("JWT_SIGNING_KEY", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("QUEUE_BACKEND", "")

	cfg := Load()
	assert.Equal(t, DevSigningKey, cfg.JWTSigningKey)
	assert.Error(t, cfg.Validate())

	cfg.JWTSigningKey = ""
	assert.Error(t, cfg.Validate())

	cfg.JWTSigningKey = "0f1e2d3c4b5a69788796a5b4c3d2e1f0"
	assert.NoError(t, cfg.Validate())

	dev := cfg
	dev.Env = "dev"
	dev.JWTSigningKey = DevSigningKey
	assert.NoError(t, dev.Validate(), "the dev key is fine outside production")

	open := cfg
	open.AdminPasswordHash = ""
	open.JWTSigningKey = DevSigningKey
	assert.NoError(t, open.Validate(), "no admin auth, no session to forge")
}
