// Package config builds runtime configuration from environment variables so
// main stays lean. Each concern gets its own struct; defaults are safe for
// local development and overridden per environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Postgres captures SQL store configuration. An empty URL means the service
// runs on in-memory stores (local development, unit tests).
type Postgres struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis captures redis client configuration. An empty URL disables redis.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Verification captures state-machine level tunables.
type Verification struct {
	// StuckTimeout is how long a non-terminal verification may sit without an
	// update before the sweep force-routes it to manual review.
	StuckTimeout time.Duration
	// SweepInterval is how often the stuck sweep runs.
	SweepInterval time.Duration
	// ProviderTimeout bounds every outbound provider call (extraction, face
	// comparison, liveness).
	ProviderTimeout time.Duration
}

// Thresholds is one environment's set of minimum passing scores.
type Thresholds struct {
	FaceMatching    float64
	Liveness        float64
	CrossValidation float64
	DocumentQuality float64
}

// Decision captures threshold resolution tunables. Sandbox values are
// uniformly more lenient than production.
type Decision struct {
	Production       Thresholds
	Sandbox          Thresholds
	OverrideCacheTTL time.Duration
}

// Webhook captures notification delivery tunables.
type Webhook struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	RequestTimeout time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
	QueueSize      int
	Workers        int
}

// Providers captures outbound provider endpoints. Empty URLs leave the
// matching strategy unavailable (vision) or swap in the development stub
// (face matching).
type Providers struct {
	VisionURL    string
	VisionAPIKey string
	AIDocURL     string
	AIDocAPIKey  string
}

// Config aggregates all runtime configuration.
type Config struct {
	Server       Server
	Postgres     Postgres
	Redis        Redis
	Verification Verification
	Decision     Decision
	Webhook      Webhook
	Providers    Providers
}

// FromEnv builds the full configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envString("VERIFY_ADDR", ":8080"),
			JWTSigningKey: envString("LIVE_TOKEN_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Verification: Verification{
			StuckTimeout:    envDuration("VERIFY_STUCK_TIMEOUT", 10*time.Minute),
			SweepInterval:   envDuration("VERIFY_SWEEP_INTERVAL", time.Minute),
			ProviderTimeout: envDuration("VERIFY_PROVIDER_TIMEOUT", 30*time.Second),
		},
		Decision: Decision{
			Production: Thresholds{
				FaceMatching:    envFloat("THRESHOLD_FACE_MATCHING", 0.85),
				Liveness:        envFloat("THRESHOLD_LIVENESS", 0.75),
				CrossValidation: envFloat("THRESHOLD_CROSS_VALIDATION", 0.70),
				DocumentQuality: envFloat("THRESHOLD_DOCUMENT_QUALITY", 0.60),
			},
			Sandbox: Thresholds{
				FaceMatching:    envFloat("SANDBOX_THRESHOLD_FACE_MATCHING", 0.60),
				Liveness:        envFloat("SANDBOX_THRESHOLD_LIVENESS", 0.50),
				CrossValidation: envFloat("SANDBOX_THRESHOLD_CROSS_VALIDATION", 0.50),
				DocumentQuality: envFloat("SANDBOX_THRESHOLD_DOCUMENT_QUALITY", 0.40),
			},
			OverrideCacheTTL: envDuration("THRESHOLD_OVERRIDE_CACHE_TTL", 5*time.Minute),
		},
		Providers: Providers{
			VisionURL:    os.Getenv("VISION_API_URL"),
			VisionAPIKey: os.Getenv("VISION_API_KEY"),
			AIDocURL:     os.Getenv("AI_DOCUMENT_API_URL"),
			AIDocAPIKey:  os.Getenv("AI_DOCUMENT_API_KEY"),
		},
		Webhook: Webhook{
			MaxAttempts:    envInt("WEBHOOK_MAX_ATTEMPTS", 3),
			BackoffBase:    envDuration("WEBHOOK_BACKOFF_BASE", 5*time.Second),
			BackoffCap:     envDuration("WEBHOOK_BACKOFF_CAP", 5*time.Minute),
			RequestTimeout: envDuration("WEBHOOK_REQUEST_TIMEOUT", 10*time.Second),
			SweepInterval:  envDuration("WEBHOOK_SWEEP_INTERVAL", 30*time.Second),
			SweepBatchSize: envInt("WEBHOOK_SWEEP_BATCH_SIZE", 100),
			QueueSize:      envInt("WEBHOOK_QUEUE_SIZE", 256),
			Workers:        envInt("WEBHOOK_WORKERS", 4),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
