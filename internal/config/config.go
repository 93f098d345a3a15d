package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the insrobot server.
type Config struct {
	Server    ServerConfig
	Queue     QueueConfig
	Transform TransformConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LogLevel  string
}

type ServerConfig struct {
	Port int
	Env  string
}

type QueueConfig struct {
	GenerateTimeout   time.Duration
	RegenerateTimeout time.Duration
	MaxBatch          int
	SpoolDir          string
	ToGenerateDir     string
}

type TransformConfig struct {
	Provider string
	Timeout  time.Duration
	Gemini   GeminiConfig
	Echo     EchoConfig
}

type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Prompt          string
	ReferenceImages []string
	AspectRatio     string
	HTTPTimeout     time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

type EchoConfig struct {
	Caption string
}

// DatabaseConfig selects the history store. A non-empty URL means Postgres;
// otherwise SQLitePath is used.
type DatabaseConfig struct {
	URL             string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	TokenHash  string
	RateLimit  int
	RateWindow time.Duration
}

const defaultPrompt = "Create a new social media image in the style of the reference images, " +
	"using the subject of the first image. Keep the composition square."

var validProviders = map[string]bool{
	"gemini": true,
	"echo":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Values from .env and .env.local are applied first without overriding the
// process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("INSROBOT_PORT", 8080),
			Env:  envString("INSROBOT_ENV", "development"),
		},
		Queue: QueueConfig{
			GenerateTimeout:   envDurationSecs("GENERATE_TIMEOUT_SECS", 300*time.Second),
			RegenerateTimeout: envDurationSecs("REGENERATE_TIMEOUT_SECS", 60*time.Second),
			MaxBatch:          envInt("MAX_BATCH_SIZE", 20),
			SpoolDir:          envString("SPOOL_DIR", "./data/temp_ai_images"),
			ToGenerateDir:     envString("TO_GENERATE_DIR", "./data/toGenerate"),
		},
		Transform: TransformConfig{
			Provider: envString("TRANSFORM_PROVIDER", "gemini"),
			Timeout:  envDurationSecs("TRANSFORM_TIMEOUT_SECS", 120*time.Second),
			Gemini: GeminiConfig{
				APIKey:          os.Getenv("GEMINI_API_KEY"),
				BaseURL:         envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
				Model:           envString("GEMINI_MODEL", "gemini-2.5-flash-image"),
				Prompt:          envString("GEMINI_PROMPT", defaultPrompt),
				ReferenceImages: envList("GEMINI_REFERENCE_IMAGES"),
				AspectRatio:     envString("GEMINI_ASPECT_RATIO", "1:1"),
				HTTPTimeout:     envDuration("GEMINI_HTTP_TIMEOUT", 90*time.Second),
				BreakerFailures: envInt("GEMINI_BREAKER_FAILURES", 5),
				BreakerCooldown: envDuration("GEMINI_BREAKER_COOLDOWN", 30*time.Second),
			},
			Echo: EchoConfig{
				Caption: envString("ECHO_CAPTION", "echo"),
			},
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			SQLitePath:      envString("SQLITE_PATH", "./data/history.db"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			TokenHash:  os.Getenv("OPERATOR_TOKEN_HASH"),
			RateLimit:  envInt("RATE_LIMIT_PER_MINUTE", 60),
			RateWindow: time.Minute,
		},
		LogLevel: envString("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("INSROBOT_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Queue.GenerateTimeout <= 0 {
		return fmt.Errorf("GENERATE_TIMEOUT_SECS must be positive")
	}
	if c.Queue.RegenerateTimeout <= 0 {
		return fmt.Errorf("REGENERATE_TIMEOUT_SECS must be positive")
	}
	if c.Queue.MaxBatch <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive, got %d", c.Queue.MaxBatch)
	}
	if c.Queue.SpoolDir == "" {
		return fmt.Errorf("SPOOL_DIR is required")
	}

	if !validProviders[c.Transform.Provider] {
		return fmt.Errorf("TRANSFORM_PROVIDER must be one of gemini, echo; got %q", c.Transform.Provider)
	}
	if c.Transform.Provider == "gemini" {
		if c.Transform.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when TRANSFORM_PROVIDER is gemini")
		}
		base := c.Transform.Gemini.BaseURL
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			return fmt.Errorf("GEMINI_BASE_URL must start with http:// or https://, got %q", base)
		}
		if c.Transform.Gemini.BreakerFailures <= 0 {
			return fmt.Errorf("GEMINI_BREAKER_FAILURES must be positive, got %d", c.Transform.Gemini.BreakerFailures)
		}
	}

	if c.Database.URL == "" && c.Database.SQLitePath == "" {
		return fmt.Errorf("one of DATABASE_URL or SQLITE_PATH is required")
	}

	if c.Auth.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.Auth.RateLimit)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
