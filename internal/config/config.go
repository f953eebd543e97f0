package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL    string
	StoreDriver    string
	MigrateOnStart bool

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Match Settings
	MatchDurationSecs         int
	AllowResubmit             bool
	DisconnectGracePeriodSecs int
	RecentProblemsWindow      int
	EloKFactor                int
	DefaultRating             int

	// Background jobs
	SweeperIntervalSecs int
	QueueExpiryMinutes  int

	// Security
	JWTSecret string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/arena?sslmode=disable"),
		StoreDriver:    getEnv("STORE_DRIVER", "postgres"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),

		// Redis (empty disables cross-instance fan-out)
		RedisURL: getEnv("REDIS_URL", ""),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Match Settings
		MatchDurationSecs:         getEnvInt("MATCH_DURATION_SECONDS", 90),
		AllowResubmit:             getEnvBool("ALLOW_RESUBMIT", true),
		DisconnectGracePeriodSecs: getEnvInt("DISCONNECT_GRACE_PERIOD_SECONDS", 8),
		RecentProblemsWindow:      getEnvInt("RECENT_PROBLEMS_WINDOW", 30),
		EloKFactor:                getEnvInt("ELO_K_FACTOR", 32),
		DefaultRating:             getEnvInt("DEFAULT_RATING", 1000),

		// Background jobs
		SweeperIntervalSecs: getEnvInt("SWEEPER_INTERVAL_SECONDS", 15),
		QueueExpiryMinutes:  getEnvInt("QUEUE_EXPIRY_MINUTES", 0),

		// Security
		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
