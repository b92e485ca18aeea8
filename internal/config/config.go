package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// DevSigningKey signs admin sessions when JWT_SIGNING_KEY is unset. It is
// refused in production whenever admin auth is enabled.
const DevSigningKey = "dev-signing-secret-change"

// App holds the runtime configuration loaded from environment variables.
// It is read once at startup and never mutated afterwards.
type App struct {
	Env      string
	HTTPPort string
	LogLevel string

	DBDriver    string
	DatabaseURL string
	RedisAddr   string

	// Reference point and threshold used to gate attendance.
	RefLatitude  float64
	RefLongitude float64
	MaxDistanceM float64

	DefaultCourse  string
	AdminListLimit int

	PublicURL string
	StaticDir string

	AdminPasswordHash string
	JWTIssuer         string
	JWTSigningKey     string
	AdminTTL          time.Duration

	QueueBackend    string
	QueueKey        string
	RateLimitPerMin int
}

// Load returns application config populated from environment variables with
// sensible defaults. A .env file in the working directory is honoured when present.
func Load() App {
	_ = godotenv.Load()

	return App{
		Env:               getEnv("APP_ENV", "dev"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DBDriver:          getEnv("DB_DRIVER", "sqlite"),
		DatabaseURL:       getEnv("DATABASE_URL", "./presence.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RefLatitude:       floatEnv("REF_LATITUDE", 48.8566),
		RefLongitude:      floatEnv("REF_LONGITUDE", 2.3522),
		MaxDistanceM:      floatEnv("MAX_DISTANCE_M", 50),
		DefaultCourse:     getEnv("DEFAULT_COURSE", "math1"),
		AdminListLimit:    intEnv("ADMIN_LIST_LIMIT", 50),
		PublicURL:         getEnv("PUBLIC_URL", os.Getenv("REPLIT_URL")),
		StaticDir:         getEnv("STATIC_DIR", "static"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", "presence"),
		JWTSigningKey:     getEnv("JWT_SIGNING_KEY", DevSigningKey),
		AdminTTL:          durationEnv("ADMIN_TTL", 8*time.Hour),
		QueueBackend:      getEnv("QUEUE_BACKEND", "memory"),
		QueueKey:          getEnv("QUEUE_KEY", "presence:events"),
		RateLimitPerMin:   intEnv("RATE_LIMIT_PER_MIN", 120),
	}
}

// Validate rejects configurations the service cannot run with.
func (a App) Validate() error {
	if a.MaxDistanceM < 0 {
		return fmt.Errorf("MAX_DISTANCE_M must be non-negative, got %v", a.MaxDistanceM)
	}
	if a.RefLatitude < -90 || a.RefLatitude > 90 {
		return fmt.Errorf("REF_LATITUDE out of range: %v", a.RefLatitude)
	}
	if a.RefLongitude < -180 || a.RefLongitude > 180 {
		return fmt.Errorf("REF_LONGITUDE out of range: %v", a.RefLongitude)
	}
	switch a.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", a.DBDriver)
	}
	switch a.QueueBackend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND %q", a.QueueBackend)
	}
	if a.Production() && a.AdminPasswordHash != "" && (a.JWTSigningKey == "" || a.JWTSigningKey == DevSigningKey) {
		return fmt.Errorf("JWT_SIGNING_KEY must be set to a private value when ADMIN_PASSWORD_HASH is set in production")
	}
	return nil
}

// Production reports whether the app runs in a production environment.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			zap.L().Warn("invalid duration, using fallback", zap.String("key", key), zap.Duration("fallback", fallback), zap.Error(err))
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			zap.L().Warn("invalid int, using fallback", zap.String("key", key), zap.Int("fallback", fallback))
			return fallback
		}
		return parsed
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			zap.L().Warn("invalid float, using fallback", zap.String("key", key), zap.Float64("fallback", fallback))
			return fallback
		}
		return parsed
	}
	return fallback
}
