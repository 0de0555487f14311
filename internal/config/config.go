package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
	Scheduler SchedulerConfig
	Services  ServicesConfig
	Server    ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecret string
	// APIKeyHash is an optional bcrypt hash of a static operator API key.
	// Empty disables API key authentication.
	APIKeyHash string
}

// RedisConfig holds the optional Redis backend configuration. When disabled,
// progress and control state live in process memory.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// DispatchConfig holds defaults for the dispatch engine
type DispatchConfig struct {
	DefaultLotSize        int
	GatewayRequestTimeout time.Duration
	MaxRetries            int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
}

// SchedulerConfig holds the schedule manager settings
type SchedulerConfig struct {
	ScanInterval time.Duration
	// InstanceRetryDelay is how far in the future a campaign is re-scheduled
	// when no gateway instance is available.
	InstanceRetryDelay time.Duration
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	ResendAPIKey         string
	DefaultEmailSender   string
	GoogleAIAPIKey       string
	OpenAIAPIKey         string
	VariationProvider    string // openai, googleai or empty (variations disabled)
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioFromNumber     string
	WebAppURI            string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Auth configuration
	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}
	cfg.Auth.APIKeyHash = os.Getenv("API_KEY_HASH")

	// Redis configuration (optional)
	cfg.Redis.Enabled = getEnvWithDefault("REDIS_ENABLED", "false") == "true"
	if cfg.Redis.Enabled {
		cfg.Redis.Host = getEnvWithDefault("REDIS_HOST", "localhost")
		redisPort := getEnvWithDefault("REDIS_PORT", "6379")
		cfg.Redis.Port, err = strconv.Atoi(redisPort)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_PORT: %w", err)
		}
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
		redisDB := getEnvWithDefault("REDIS_DB", "0")
		cfg.Redis.DB, err = strconv.Atoi(redisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_DB: %w", err)
		}
	}

	// Dispatch configuration
	lotSize := getEnvWithDefault("DISPATCH_DEFAULT_LOT_SIZE", "50")
	cfg.Dispatch.DefaultLotSize, err = strconv.Atoi(lotSize)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DISPATCH_DEFAULT_LOT_SIZE: %w", err)
	}
	if cfg.Dispatch.GatewayRequestTimeout, err = durationEnv("GATEWAY_REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	maxRetries := getEnvWithDefault("DISPATCH_MAX_RETRIES", "3")
	cfg.Dispatch.MaxRetries, err = strconv.Atoi(maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DISPATCH_MAX_RETRIES: %w", err)
	}
	if cfg.Dispatch.RetryBaseDelay, err = durationEnv("DISPATCH_RETRY_BASE_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.Dispatch.RetryMaxDelay, err = durationEnv("DISPATCH_RETRY_MAX_DELAY", 10*time.Second); err != nil {
		return nil, err
	}

	// Scheduler configuration
	if cfg.Scheduler.ScanInterval, err = durationEnv("SCHEDULER_SCAN_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Scheduler.InstanceRetryDelay, err = durationEnv("SCHEDULER_INSTANCE_RETRY_DELAY", time.Minute); err != nil {
		return nil, err
	}

	// Services configuration (all optional integrations)
	cfg.Services.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.Services.DefaultEmailSender = os.Getenv("DEFAULT_EMAIL_SENDER_ADDRESS")
	cfg.Services.GoogleAIAPIKey = os.Getenv("GOOGLE_AI_API_KEY")
	cfg.Services.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Services.VariationProvider = os.Getenv("VARIATION_PROVIDER")
	cfg.Services.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Services.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Services.TwilioFromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	cfg.Services.WebAppURI = getEnvWithDefault("WEBAPP_URI", "http://localhost:3000")

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// durationEnv parses a duration environment variable with a fallback
func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
