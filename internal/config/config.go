package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port      int    `validate:"min=1,max=65535"`
	AppEnv    string `validate:"required"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	// DatabaseURL selects Postgres; empty keeps subscriptions in memory.
	DatabaseURL string
	JWTSecret   string
	CORSOrigins []string `validate:"min=1,dive,required"`

	AzureSubscriptionID string
	AzureLocation       string `validate:"required"`
	UseSimulation       bool
	SimulationStepDelay time.Duration `validate:"min=0s"`

	// RedisURL enables cross-replica progress fan-out when set.
	RedisURL        string
	ShutdownTimeout time.Duration `validate:"min=1s"`
}

const minJWTSecretLength = 16

// LoadDotEnv reads path into the environment if the file exists.
// Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "4001"))
	if err != nil {
		return nil, fmt.Errorf("PORT must be a number: %w", err)
	}

	useSimulation, err := strconv.ParseBool(getEnv("AZURE_USE_SIMULATION", "true"))
	if err != nil {
		return nil, fmt.Errorf("AZURE_USE_SIMULATION must be a boolean: %w", err)
	}

	stepDelay, err := time.ParseDuration(getEnv("SIMULATION_STEP_DELAY", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("SIMULATION_STEP_DELAY must be a duration: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT must be a duration: %w", err)
	}

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:4200"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	cfg := &Config{
		Port:                port,
		AppEnv:              getEnv("APP_ENV", "development"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "json")),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		CORSOrigins:         origins,
		AzureSubscriptionID: getEnv("AZURE_SUBSCRIPTION_ID", ""),
		AzureLocation:       getEnv("AZURE_LOCATION", "eastus"),
		UseSimulation:       useSimulation,
		SimulationStepDelay: stepDelay,
		RedisURL:            getEnv("REDIS_URL", ""),
		ShutdownTimeout:     shutdownTimeout,
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// RequireJWTSecret checks the secret needed to verify and issue tokens.
func (c *Config) RequireJWTSecret() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters, got %d", minJWTSecretLength, len(c.JWTSecret))
	}
	return nil
}

// Simulated reports whether deployments should be simulated.
// Without an Azure subscription there is nothing real to deploy to.
func (c *Config) Simulated() bool {
	return c.UseSimulation || c.AzureSubscriptionID == ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
