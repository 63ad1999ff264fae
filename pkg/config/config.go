package config

import (
	"fmt"
	"time"

	"mediconnect-backend/pkg/constants"
	"mediconnect-backend/pkg/env"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	LLM      LLMConfig
	Call     CallConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port             int
	Environment      string // development, staging, production
	ServiceName      string
	AllowedOrigins   []string
	WSMaxConnections int // concurrent mailbox streams
	AssistRateLimit  int // assistance requests per user per minute
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

// LLMConfig configures the assistance language model. An empty APIKey
// puts the assistant in canned-response mode.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// CallConfig holds call session defaults
type CallConfig struct {
	STUNServers        []string
	ReconnectDelay     time.Duration
	NegotiationTimeout time.Duration // zero disables
}

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// IsProduction reports whether ENV is production
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:             env.GetInt("PORT", 8080),
			Environment:      env.GetString("ENV", "development"),
			ServiceName:      env.GetString("SERVICE_NAME", "consult-service"),
			AllowedOrigins:   env.GetStringSlice("CORS_ALLOWED_ORIGINS", defaultOrigins),
			WSMaxConnections: env.GetInt("WS_MAX_CONNECTIONS", constants.WebSocketMaxConnections),
			AssistRateLimit:  env.GetInt("ASSIST_RATE_LIMIT", 20),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "mediconnect"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		JWT: JWTConfig{
			Secret:            env.GetStringFromFile("JWT_SECRET", ""),
			AccessTokenExpiry: env.GetDuration("JWT_ACCESS_EXPIRY", constants.AccessTokenExpiry),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/app.log"),
		},
		LLM: LLMConfig{
			APIKey:      env.GetStringFromFile("LLM_API_KEY", ""),
			BaseURL:     env.GetString("LLM_BASE_URL", constants.DefaultLLMBaseURL),
			Model:       env.GetString("LLM_MODEL", constants.DefaultLLMModel),
			Temperature: constants.DefaultLLMTemperature,
			MaxTokens:   env.GetInt("LLM_MAX_TOKENS", constants.DefaultLLMMaxTokens),
			Timeout:     env.GetDuration("LLM_TIMEOUT", constants.LLMRequestTimeout),
		},
		Call: CallConfig{
			STUNServers:        env.GetStringSlice("STUN_SERVERS", constants.DefaultSTUNServers),
			ReconnectDelay:     env.GetDuration("CALL_RECONNECT_DELAY", constants.ReconnectPromptDelay),
			NegotiationTimeout: env.GetDuration("CALL_NEGOTIATION_TIMEOUT", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Server.Port)
	}
	if c.Call.ReconnectDelay < 0 {
		return fmt.Errorf("CALL_RECONNECT_DELAY must not be negative")
	}
	return nil
}

// DatabaseURL renders the pgx connection string
func (d DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// Addr renders host:port for the Redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
