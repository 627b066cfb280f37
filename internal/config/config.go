package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Ingestion listener
	ListenHost   string        `env:"LISTEN_HOST" default:"0.0.0.0"`
	MeshPort     int           `env:"MESH_PORT" default:"8080"`
	PollInterval time.Duration `env:"POLL_INTERVAL" default:"100ms"`
	AcceptWait   time.Duration `env:"ACCEPT_WAIT" default:"1ms"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" default:"0"` // 0 = block until the sender finishes

	// Protocol limits
	MaxVertexFloats int  `env:"MAX_VERTEX_FLOATS" default:"6291456"`
	MaxIndices      int  `env:"MAX_INDICES" default:"12582912"`
	RejectNonFinite bool `env:"REJECT_NON_FINITE" default:"true"`

	// Scene
	TargetTag   string `env:"TARGET_TAG" default:"BlenderTarget"`
	TargetLabel string `env:"TARGET_LABEL" default:"ReceivedMesh"`
	MaxEntities int    `env:"MAX_ENTITIES" default:"1024"`

	// Export
	ExportEnabled    bool          `env:"EXPORT_ENABLED" default:"true"`
	ExportDir        string        `env:"EXPORT_DIR" default:"./data/baked"`
	ExportNameHint   string        `env:"EXPORT_NAME_HINT" default:"SM_BlenderMesh"`
	ExportRatePerSec float64       `env:"EXPORT_RATE_PER_SEC" default:"1"`
	ExportTimeout    time.Duration `env:"EXPORT_TIMEOUT" default:"10s"`

	// Asset registry (empty = disabled)
	DatabaseURL string `env:"DATABASE_URL"`

	// Viewport mirror (empty = disabled)
	RedisURL      string `env:"REDIS_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Admin API + monitoring
	HTTPPort          int  `env:"HTTP_PORT" default:"8084"`
	PrometheusEnabled bool `env:"PROMETHEUS_ENABLED" default:"true"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`
}

// LoadConfig loads configuration from .env (if present) and environment variables
func LoadConfig() (*Config, error) {
	err := godotenv.Load(".env")
	if err != nil {
		// If .env file doesn't exist, that's OK - we can still use system env vars
		fmt.Fprintf(os.Stderr, "Warning: .env file not found: %v\n", err)
	}
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	// Listener
	if err := loadEnvString(&config.ListenHost, "LISTEN_HOST", "0.0.0.0"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MeshPort, "MESH_PORT", 8080); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.PollInterval, "POLL_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.AcceptWait, "ACCEPT_WAIT", time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ReadTimeout, "READ_TIMEOUT", 0); err != nil {
		return nil, err
	}

	// Protocol limits
	if err := loadEnvInt(&config.MaxVertexFloats, "MAX_VERTEX_FLOATS", 3*(1<<21)); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MaxIndices, "MAX_INDICES", 3*(1<<22)); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&config.RejectNonFinite, "REJECT_NON_FINITE", true); err != nil {
		return nil, err
	}

	// Scene
	if err := loadEnvString(&config.TargetTag, "TARGET_TAG", "BlenderTarget"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.TargetLabel, "TARGET_LABEL", "ReceivedMesh"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MaxEntities, "MAX_ENTITIES", 1024); err != nil {
		return nil, err
	}

	// Export
	if err := loadEnvBool(&config.ExportEnabled, "EXPORT_ENABLED", true); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.ExportDir, "EXPORT_DIR", "./data/baked"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.ExportNameHint, "EXPORT_NAME_HINT", "SM_BlenderMesh"); err != nil {
		return nil, err
	}
	if err := loadEnvFloat(&config.ExportRatePerSec, "EXPORT_RATE_PER_SEC", 1); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ExportTimeout, "EXPORT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	// Stores
	if err := loadEnvString(&config.DatabaseURL, "DATABASE_URL", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}

	// Admin API + monitoring
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 8084); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&config.PrometheusEnabled, "PROMETHEUS_ENABLED", true); err != nil {
		return nil, err
	}

	// Logging
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "json"); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	// Validate ports are in valid range (0 lets the OS pick, used by tests)
	if c.MeshPort < 0 || c.MeshPort > 65535 {
		errors = append(errors, "MESH_PORT must be between 0 and 65535")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 0 and 65535")
	}

	if c.PollInterval <= 0 {
		errors = append(errors, "POLL_INTERVAL must be positive")
	}
	if c.AcceptWait <= 0 || c.AcceptWait >= c.PollInterval {
		errors = append(errors, "ACCEPT_WAIT must be positive and shorter than POLL_INTERVAL")
	}
	if c.ReadTimeout < 0 {
		errors = append(errors, "READ_TIMEOUT must not be negative")
	}

	// 0 would lift the cap and let one header demand an unbounded body
	if c.MaxVertexFloats <= 0 || c.MaxVertexFloats > math.MaxInt32 || c.MaxVertexFloats%3 != 0 {
		errors = append(errors, "MAX_VERTEX_FLOATS must be a positive multiple of 3 that fits in int32")
	}
	if c.MaxIndices <= 0 || c.MaxIndices > math.MaxInt32 || c.MaxIndices%3 != 0 {
		errors = append(errors, "MAX_INDICES must be a positive multiple of 3 that fits in int32")
	}

	if strings.TrimSpace(c.TargetTag) == "" {
		errors = append(errors, "TARGET_TAG must not be empty")
	}

	if c.ExportEnabled {
		if c.ExportDir == "" {
			errors = append(errors, "EXPORT_DIR must be set when EXPORT_ENABLED")
		}
		if c.ExportNameHint == "" {
			errors = append(errors, "EXPORT_NAME_HINT must be set when EXPORT_ENABLED")
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// MeshAddr is the host:port the ingestion listener binds
func (c *Config) MeshAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.MeshPort)
}

// RedisAddr strips the scheme from REDIS_URL
func (c *Config) RedisAddr() string {
	addr := strings.TrimPrefix(c.RedisURL, "redis://")
	return strings.TrimPrefix(addr, "rediss://")
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
