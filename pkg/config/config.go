package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Stream   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	OTEL     OTELConfig
}

// AppConfig holds process-wide settings
type AppConfig struct {
	Env string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ConnectAttempts bounds the startup ping retries
	ConnectAttempts int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize        int
	ConnectAttempts int
}

// QueueConfig holds the queue engine tuning knobs
type QueueConfig struct {
	// Store selects the QueueStore backend: "postgres" or "memory"
	Store string
	// Cache selects the stats cache backend: "redis" or "memory"
	Cache string

	DefaultServiceMinutes float64
	StatsTTLSeconds       int
	StoreTimeout          time.Duration

	// NoShowAfter marks waiting entries as no-show once they have waited this
	// long. Zero disables the sweeper.
	NoShowAfter         time.Duration
	NoShowSweepInterval time.Duration

	LocalCacheSize  int
	BroadcastBuffer int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Stream: ServerConfig{
			Host: getEnv("SSE_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SSE_PORT", 8081),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "medgo"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectAttempts: getEnvAsInt("DB_CONNECT_ATTEMPTS", 10),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),

			PoolSize:        getEnvAsInt("REDIS_POOL_SIZE", 20),
			ConnectAttempts: getEnvAsInt("REDIS_CONNECT_ATTEMPTS", 3),
		},
		Queue: QueueConfig{
			Store:                 getEnv("QUEUE_STORE", "postgres"),
			Cache:                 getEnv("QUEUE_CACHE", "redis"),
			DefaultServiceMinutes: getEnvAsFloat("QUEUE_DEFAULT_SERVICE_MINUTES", 15),
			StatsTTLSeconds:       getEnvAsInt("QUEUE_STATS_TTL_SECONDS", 60),
			StoreTimeout:          getEnvAsDuration("QUEUE_STORE_TIMEOUT", 5*time.Second),
			NoShowAfter:           getEnvAsDuration("QUEUE_NO_SHOW_AFTER", 0),
			NoShowSweepInterval:   getEnvAsDuration("QUEUE_NO_SHOW_SWEEP_INTERVAL", time.Minute),
			LocalCacheSize:        getEnvAsInt("QUEUE_LOCAL_CACHE_SIZE", 1024),
			BroadcastBuffer:       getEnvAsInt("QUEUE_BROADCAST_BUFFER", 1024),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "medgo-queue"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Queue.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects queue settings the engine cannot run with
func (q *QueueConfig) Validate() error {
	switch q.Store {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid QUEUE_STORE %q: want postgres or memory", q.Store)
	}
	switch q.Cache {
	case "redis", "memory":
	default:
		return fmt.Errorf("invalid QUEUE_CACHE %q: want redis or memory", q.Cache)
	}
	if q.DefaultServiceMinutes <= 0 {
		return fmt.Errorf("QUEUE_DEFAULT_SERVICE_MINUTES must be positive, got %v", q.DefaultServiceMinutes)
	}
	if q.StatsTTLSeconds <= 0 {
		return fmt.Errorf("QUEUE_STATS_TTL_SECONDS must be positive, got %d", q.StatsTTLSeconds)
	}
	if q.StoreTimeout <= 0 {
		return fmt.Errorf("QUEUE_STORE_TIMEOUT must be positive, got %s", q.StoreTimeout)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
