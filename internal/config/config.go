package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wschat/pkg/logger"
)

type Config struct {
	Server    ServerConfig
	Chat      ChatConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Bootstrap BootstrapConfig
	LogLevel  string
}

type ServerConfig struct {
	ListenAddr       string
	Scheduler        string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxFrameSize     int
	SendQueueSize    int
	RateLimit        RateLimitConfig
}

type RateLimitConfig struct {
	Enabled           bool
	MessagesPerSecond float64
	Burst             int
}

type ChatConfig struct {
	ServiceName        string
	Services           []string
	MaxMessagesPerFile int
	PasswordCost       int
}

type StorageConfig struct {
	Driver      string
	Path        string
	RedisAddr   string
	RedisPrefix string
	SQLitePath  string
}

type DatabaseConfig struct {
	URL     string
	Timeout time.Duration
}

type JWTConfig struct {
	Secret    []byte
	ExpiresIn time.Duration
}

// BootstrapConfig seeds an administrator into the in-memory directory.
type BootstrapConfig struct {
	AdminLogin    string
	AdminPassword string
}

const (
	SchedulerLoop   = "loop"
	SchedulerLocked = "locked"

	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded: %v", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:       getEnvOrDefault("LISTEN_ADDR", ":8000"),
			Scheduler:        getEnvOrDefault("SCHEDULER", SchedulerLoop),
			HandshakeTimeout: getDurationOrDefault("HANDSHAKE_TIMEOUT", "0s"),
			WriteTimeout:     getDurationOrDefault("WRITE_TIMEOUT", "5s"),
			MaxFrameSize:     getIntOrDefault("MAX_FRAME_SIZE", 1<<20),
			SendQueueSize:    getIntOrDefault("SEND_QUEUE_SIZE", 256),
			RateLimit: RateLimitConfig{
				Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
				MessagesPerSecond: getFloatOrDefault("RATE_LIMIT_PER_SECOND", 20),
				Burst:             getIntOrDefault("RATE_LIMIT_BURST", 40),
			},
		},
		Chat: ChatConfig{
			ServiceName:        getEnvOrDefault("CHAT_SERVICE_NAME", "chatService"),
			MaxMessagesPerFile: getIntOrDefault("MAX_MESSAGES_PER_FILE", 100),
			PasswordCost:       getIntOrDefault("PASSWORD_COST", 10),
		},
		Storage: StorageConfig{
			Driver:      getEnvOrDefault("STORAGE_DRIVER", StorageFile),
			Path:        getEnvOrDefault("STORAGE_PATH", "./data/rooms"),
			RedisAddr:   getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			RedisPrefix: getEnvOrDefault("REDIS_PREFIX", "wschat:"),
			SQLitePath:  getEnvOrDefault("SQLITE_PATH", "./data/rooms.db"),
		},
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			Timeout: getDurationOrDefault("DIRECTORY_TIMEOUT", "2s"),
		},
		JWT: JWTConfig{
			Secret:    []byte(os.Getenv("JWT_SECRET")),
			ExpiresIn: getDurationOrDefault("JWT_EXPIRES_IN", "24h"),
		},
		Bootstrap: BootstrapConfig{
			AdminLogin:    os.Getenv("ADMIN_LOGIN"),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}
	cfg.Chat.Services = splitList(getEnvOrDefault("SERVICES", cfg.Chat.ServiceName))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR cannot be empty")
	}
	switch c.Server.Scheduler {
	case SchedulerLoop, SchedulerLocked:
	default:
		return fmt.Errorf("SCHEDULER must be %q or %q, got %q", SchedulerLoop, SchedulerLocked, c.Server.Scheduler)
	}
	if c.Server.HandshakeTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	if c.Server.MaxFrameSize <= 0 {
		return fmt.Errorf("MAX_FRAME_SIZE must be positive")
	}
	if c.Server.SendQueueSize <= 0 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be positive")
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.MessagesPerSecond <= 0 || c.Server.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit and burst must be positive when rate limiting is enabled")
	}
	if c.Chat.ServiceName == "" {
		return fmt.Errorf("CHAT_SERVICE_NAME cannot be empty")
	}
	if c.Chat.MaxMessagesPerFile <= 0 {
		return fmt.Errorf("MAX_MESSAGES_PER_FILE must be positive")
	}
	if c.Chat.PasswordCost < 4 || c.Chat.PasswordCost > 31 {
		return fmt.Errorf("PASSWORD_COST must be between 4 and 31")
	}
	switch c.Storage.Driver {
	case StorageFile, StorageMemory:
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis storage driver")
		}
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Storage.Driver == StorageFile && c.Storage.Path == "" {
		return fmt.Errorf("STORAGE_PATH cannot be empty")
	}
	if len(c.JWT.Secret) == 0 {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Bootstrap.AdminLogin != "" && c.Bootstrap.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_LOGIN is set")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("DIRECTORY_TIMEOUT must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid duration for %s: %v, using %s", key, err, defaultValue)
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn("Invalid integer for %s: %v, using %d", key, err, defaultValue)
		return defaultValue
	}
	return intValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logger.Warn("Invalid number for %s: %v, using %g", key, err, defaultValue)
		return defaultValue
	}
	return f
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		logger.Warn("Invalid boolean for %s: %v, using %t", key, err, defaultValue)
		return defaultValue
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
