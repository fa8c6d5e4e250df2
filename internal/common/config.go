package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mhartley/invoice-extract/constants"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Pipeline  PipelineConfig
	Validator ValidatorConfig
	DocAI     DocAIConfig
	LLM       LLMConfig
	Retry     RetryConfig
	Ledger    LedgerConfig
}

// ServerConfig holds the HTTP surface configuration.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// PipelineConfig bounds the multi-tier fallback run.
type PipelineConfig struct {
	// Budget is the upstream caller's wall-clock limit; SafetyMargin is
	// subtracted from it to leave room for response delivery.
	Budget       time.Duration
	SafetyMargin time.Duration
	EnabledTiers []constants.TierName
	ProfileDir   string // optional YAML vendor-profile overlays
}

// ValidatorConfig holds the degenerate-result thresholds. The numbers are
// tunable on purpose; see the validator package for their meaning.
type ValidatorConfig struct {
	MinItemsForDupCheck int
	MinUniquePairRatio  float64
	MaxEmptyFieldRatio  float64
}

// DocAIConfig points at the document-understanding service.
type DocAIConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// LLMConfig drives the generative tier (disabled unless Enabled is set).
type LLMConfig struct {
	Enabled     bool
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// RetryConfig bounds remote-call retries inside a tier.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// LedgerConfig locates the embedded job ledger.
type LedgerConfig struct {
	DSN string // file path or ":memory:"
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	tiers := constants.DefaultTierOrder()
	if s := os.Getenv("ENABLED_TIERS"); s != "" {
		if parsed, unknown := constants.ParseTierList(s); len(unknown) == 0 && len(parsed) > 0 {
			tiers = parsed
		}
	}
	return &Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Pipeline: PipelineConfig{
			Budget:       getEnvAsDuration("EXTRACT_BUDGET", 160*time.Second),
			SafetyMargin: getEnvAsDuration("EXTRACT_SAFETY_MARGIN", 10*time.Second),
			EnabledTiers: tiers,
			ProfileDir:   getEnv("VENDOR_PROFILE_DIR", ""),
		},
		Validator: ValidatorConfig{
			MinItemsForDupCheck: getEnvAsInt("VALIDATOR_MIN_ITEMS", 10),
			MinUniquePairRatio:  getEnvAsFloat64("VALIDATOR_MIN_UNIQUE_RATIO", 0.20),
			MaxEmptyFieldRatio:  getEnvAsFloat64("VALIDATOR_MAX_EMPTY_RATIO", 0.50),
		},
		DocAI: DocAIConfig{
			Endpoint: getEnv("DOCAI_ENDPOINT", ""),
			APIKey:   getEnv("DOCAI_API_KEY", ""),
			Timeout:  getEnvAsDuration("DOCAI_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Enabled:     getEnvAsBool("LLM_TIER_ENABLED", false),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", 8*time.Second),
			Jitter:      getEnvAsFloat64("RETRY_JITTER", 0.2),
		},
		Ledger: LedgerConfig{
			DSN: getEnv("LEDGER_DSN", "file:extract_jobs.db"),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Pipeline.Budget <= 0 {
		return NewAppError("CONFIG_ERROR", "EXTRACT_BUDGET must be positive", ErrInvalidInput)
	}
	if c.Pipeline.SafetyMargin < 0 || c.Pipeline.SafetyMargin >= c.Pipeline.Budget {
		return NewAppError("CONFIG_ERROR", "EXTRACT_SAFETY_MARGIN must be shorter than EXTRACT_BUDGET", ErrInvalidInput)
	}
	if len(c.Pipeline.EnabledTiers) == 0 {
		return NewAppError("CONFIG_ERROR", "at least one tier must be enabled", ErrInvalidInput)
	}
	if c.Validator.MinUniquePairRatio <= 0 || c.Validator.MinUniquePairRatio > 1 {
		return NewAppError("CONFIG_ERROR", "VALIDATOR_MIN_UNIQUE_RATIO must be in (0,1]", ErrInvalidInput)
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required when the generative tier is enabled", ErrInvalidInput)
	}
	return nil
}
