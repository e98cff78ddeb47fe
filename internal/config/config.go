package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisURL string

	ServerPort string

	// Fan-out tuning. FollowerPageSize bounds one follower-id page,
	// FanoutPagesPerJob bounds how many pages a single job execution
	// processes before enqueueing a continuation chunk.
	FollowerPageSize  int
	FanoutPagesPerJob int

	// BackfillLimit is K: how many recent posts a new follow copies in.
	BackfillLimit int

	WorkerCount int

	// TimelineCacheTTL is the freshness window of the read-through page
	// cache. Short on purpose: staleness is bounded by TTL, not by
	// invalidation.
	TimelineCacheTTL time.Duration

	// RetentionAge trims feed entries older than this; zero disables the
	// retention sweep.
	RetentionAge      time.Duration
	RetentionInterval time.Duration
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  sslMode,

		RedisURL: redisURL,

		ServerPort: serverPort,

		FollowerPageSize:  envInt("FANOUT_FOLLOWER_PAGE_SIZE", 500),
		FanoutPagesPerJob: envInt("FANOUT_PAGES_PER_JOB", 20),
		BackfillLimit:     envInt("BACKFILL_LIMIT", 50),
		WorkerCount:       envInt("WORKER_COUNT", 2),

		TimelineCacheTTL:  envDuration("TIMELINE_CACHE_TTL", 2*time.Minute),
		RetentionAge:      envDuration("FEED_RETENTION_AGE", 0),
		RetentionInterval: envDuration("FEED_RETENTION_INTERVAL", time.Hour),
	}, nil
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
