package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	AuditSink AuditSinkConfig
	Directory DirectoryConfig
	Register  RegisterConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// AuditSinkConfig contains credentials for the central compliance audit service.
type AuditSinkConfig struct {
	BaseURL  string
	APIToken string
}

// DirectoryConfig contains credentials for the staff directory service.
type DirectoryConfig struct {
	BaseURL  string
	APIToken string
}

// RegisterConfig holds register policy and timeout options.
type RegisterConfig struct {
	ReferenceGrade string
	CommitTimeout  time.Duration
	VerifyTimeout  time.Duration
}

// SchedulerConfig holds cron schedules for background sweeps.
type SchedulerConfig struct {
	AuditFlushSchedule string
	LowStockSchedule   string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are acceptable when configuration comes from the
		// environment directly.
		_ = godotenv.Load()
	}

	commitTimeout, err := durationEnv("COMMIT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	verifyTimeout, err := durationEnv("WITNESS_VERIFY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "cdregister"),
		},
		AuditSink: AuditSinkConfig{
			BaseURL:  os.Getenv("AUDIT_SINK_BASE_URL"),
			APIToken: os.Getenv("AUDIT_SINK_TOKEN"),
		},
		Directory: DirectoryConfig{
			BaseURL:  os.Getenv("DIRECTORY_BASE_URL"),
			APIToken: os.Getenv("DIRECTORY_TOKEN"),
		},
		Register: RegisterConfig{
			ReferenceGrade: getenvWithDefault("REFERENCE_GRADE", "Paramedic"),
			CommitTimeout:  commitTimeout,
			VerifyTimeout:  verifyTimeout,
		},
		Scheduler: SchedulerConfig{
			AuditFlushSchedule: getenvWithDefault("AUDIT_FLUSH_SCHEDULE", "*/5 * * * *"),
			LowStockSchedule:   getenvWithDefault("LOW_STOCK_SCHEDULE", "0 8 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	}

	if c.AuditSink.BaseURL == "" {
		return errors.New("AUDIT_SINK_BASE_URL must be provided")
	}

	if c.Directory.BaseURL == "" {
		return errors.New("DIRECTORY_BASE_URL must be provided")
	}

	if c.Register.CommitTimeout <= 0 {
		return errors.New("COMMIT_TIMEOUT must be positive")
	}

	if c.Register.VerifyTimeout <= 0 {
		return errors.New("WITNESS_VERIFY_TIMEOUT must be positive")
	}

	switch {
	case c.Scheduler.AuditFlushSchedule == "":
		return errors.New("AUDIT_FLUSH_SCHEDULE must be provided")
	case c.Scheduler.LowStockSchedule == "":
		return errors.New("LOW_STOCK_SCHEDULE must be provided")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return d, nil
}
