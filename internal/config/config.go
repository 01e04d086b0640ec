package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries all runtime settings, loaded from the environment with
// sensible defaults for local development.
type Config struct {
	Port       string
	GinMode    string
	CORSOrigin string
	LogLevel   string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret string

	EngineURL       string
	AnalysisTimeout time.Duration

	WorkerCount     int
	QueueSize       int
	FreshnessWindow time.Duration
}

func Load() Config {
	return Config{
		Port:       env("PORT", "8080"),
		GinMode:    env("GIN_MODE", "debug"),
		CORSOrigin: env("CORS_ORIGIN", "http://localhost:5173"),
		LogLevel:   env("LOG_LEVEL", "INFO"),

		DBHost:     env("DB_HOST", "localhost"),
		DBPort:     env("DB_PORT", "5432"),
		DBUser:     env("DB_USER", "postgres"),
		DBPassword: env("DB_PASSWORD", "postgres"),
		DBName:     env("DB_NAME", "citecheck"),
		DBSSLMode:  env("DB_SSLMODE", "disable"),

		JWTSecret: env("JWT_SECRET", ""),

		EngineURL:       env("ENGINE_URL", "http://localhost:8000"),
		AnalysisTimeout: envDuration("ANALYSIS_TIMEOUT_SECONDS", 300*time.Second),

		WorkerCount:     envInt("WORKER_COUNT", 2),
		QueueSize:       envInt("QUEUE_SIZE", 100),
		FreshnessWindow: envDuration("FRESHNESS_WINDOW_SECONDS", time.Hour),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
