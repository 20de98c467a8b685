// Package config loads kodejudge configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SandboxDefaults holds the default execution limits applied when a
// submission does not override them.
type SandboxDefaults struct {
	CPUTimeLimit             float64
	CPUExtraTime             float64
	WallTimeLimit            float64
	MemoryLimitKB            int
	MaxProcesses             int
	MaxFileSizeKB            int
	NumberOfRuns             int
	PerProcessTimeLimit      bool
	PerProcessMemoryLimit    bool
	RedirectStderrToStdout   bool
	EnableNetwork            bool
	MaxAdditionalFiles       int
	MaxAdditionalFilesSizeKB int
}

// Config is the full process configuration for both the API server and the
// worker pool.
type Config struct {
	ServerAddr  string
	Environment string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	RedisHost   string
	RedisPort   int
	RedisPrefix string

	WorkerConcurrency int
	IsolateBinary     string

	WaitTimeout time.Duration

	RateLimitEnabled   bool
	RateLimitPerMinute int
	RateLimitBurst     int

	Sandbox SandboxDefaults
}

// Load reads configuration from the environment, honoring a .env file when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddr:  getString("SERVER_ADDR", ":8080"),
		Environment: getString("ENVIRONMENT", "development"),

		PostgresHost:     getString("POSTGRES_HOST", "localhost"),
		PostgresPort:     getInt("POSTGRES_PORT", 5432),
		PostgresUser:     getString("POSTGRES_USER", "postgres"),
		PostgresPassword: getString("POSTGRES_PASSWORD", ""),
		PostgresDB:       getString("POSTGRES_DB", "kodejudge"),

		RedisHost:   getString("REDIS_HOST", "localhost"),
		RedisPort:   getInt("REDIS_PORT", 6379),
		RedisPrefix: getString("REDIS_PREFIX", "kodejudge"),

		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 4),
		IsolateBinary:     getString("ISOLATE_BINARY", "/usr/local/bin/isolate"),

		WaitTimeout: getDuration("WAIT_TIMEOUT", 15*time.Second),

		RateLimitEnabled:   getBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 20),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 10),

		Sandbox: SandboxDefaults{
			CPUTimeLimit:             getFloat("SANDBOX_CPU_TIME_LIMIT", 2.0),
			CPUExtraTime:             getFloat("SANDBOX_CPU_EXTRA_TIME", 0.5),
			WallTimeLimit:            getFloat("SANDBOX_WALL_TIME_LIMIT", 5.0),
			MemoryLimitKB:            getInt("SANDBOX_MEMORY_LIMIT", 128000),
			MaxProcesses:             getInt("SANDBOX_MAX_PROCESSES", 128),
			MaxFileSizeKB:            getInt("SANDBOX_MAX_FILE_SIZE", 10240),
			NumberOfRuns:             getInt("SANDBOX_NUMBER_OF_RUNS", 1),
			PerProcessTimeLimit:      getBool("SANDBOX_ENABLE_PER_PROCESS_TIME_LIMIT", false),
			PerProcessMemoryLimit:    getBool("SANDBOX_ENABLE_PER_PROCESS_MEMORY_LIMIT", false),
			RedirectStderrToStdout:   getBool("SANDBOX_REDIRECT_STDERR_TO_STDOUT", false),
			EnableNetwork:            getBool("SANDBOX_ENABLE_NETWORK", false),
			MaxAdditionalFiles:       getInt("SANDBOX_MAX_ADDITIONAL_FILES", 10),
			MaxAdditionalFilesSizeKB: getInt("SANDBOX_MAX_ADDITIONAL_FILES_SIZE", 2048),
		},
	}

	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be >= 1, got %d", cfg.WorkerConcurrency)
	}

	return cfg, nil
}

// PostgresDSN builds the gorm/pgx connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
	)
}

// RedisAddr returns the host:port address of the Redis instance.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// QueueName returns the Redis list key holding pending submission ids.
func (c *Config) QueueName() string {
	return c.RedisPrefix + "_submission_queue"
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
