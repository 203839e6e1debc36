// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (AYUDANTE_* plus DATABASE_URL and API keys)
//  2. Config file (~/.ayudante/config.yaml)
//  3. Default values
//
// Sensitive values (API keys, the HMAC secret, the database password) are
// masked in MarshalJSON and never logged. Validation is fail-fast with
// sentinel errors checkable via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Model and retrieval defaults.
const (
	// DefaultModelName is the Anthropic model used for both generation passes.
	DefaultModelName = "claude-sonnet-4-5"

	// DefaultEmbedderModel is the Voyage AI embedding model. voyage-2
	// outputs 1024 dimensions; the document_embeddings schema matches.
	DefaultEmbedderModel = "voyage-2"

	// DefaultSearchTopK is the number of document matches returned to the
	// search tool.
	DefaultSearchTopK = 3

	// DefaultSearchThreshold is the minimum cosine similarity for a match.
	DefaultSearchThreshold = 0.5

	// DefaultHistoryBudget is the approximate token budget for prior
	// conversation messages sent to the model.
	DefaultHistoryBudget = 3000
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// Model configuration
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// API keys (environment only, never from file)
	AnthropicAPIKey string `mapstructure:"anthropic_api_key" json:"anthropic_api_key"` // SENSITIVE: masked in MarshalJSON
	VoyageAPIKey    string `mapstructure:"voyage_api_key" json:"voyage_api_key"`       // SENSITIVE: masked in MarshalJSON

	// Retrieval configuration
	EmbedderModel   string  `mapstructure:"embedder_model" json:"embedder_model"`
	SearchTopK      int     `mapstructure:"search_top_k" json:"search_top_k"`
	SearchThreshold float64 `mapstructure:"search_threshold" json:"search_threshold"`

	// Conversation context budget (approximate tokens)
	HistoryBudget int `mapstructure:"history_budget" json:"history_budget"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	HMACSecret  string   `mapstructure:"hmac_secret" json:"hmac_secret"` // SENSITIVE: masked in MarshalJSON
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Rate limiting (per user)
	RateLimitRequests int           `mapstructure:"rate_limit_requests" json:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window" json:"rate_limit_window"`

	// Observability (OTLP trace export; disabled when endpoint is empty)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ayudante")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)

	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("search_top_k", DefaultSearchTopK)
	viper.SetDefault("search_threshold", DefaultSearchThreshold)
	viper.SetDefault("history_budget", DefaultHistoryBudget)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "ayudante")
	viper.SetDefault("postgres_password", "ayudante_dev_password")
	viper.SetDefault("postgres_db_name", "ayudante")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("trust_proxy", false)

	viper.SetDefault("rate_limit_requests", 10)
	viper.SetDefault("rate_limit_window", time.Hour)

	viper.SetDefault("service_name", "ayudante")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly. Secrets come
// only from the environment, never from the config file on disk.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("anthropic_api_key", "ANTHROPIC_API_KEY")
	mustBind("voyage_api_key", "VOYAGE_API_KEY")
	mustBind("hmac_secret", "HMAC_SECRET")

	mustBind("model_name", "AYUDANTE_MODEL_NAME")
	mustBind("listen_addr", "AYUDANTE_LISTEN_ADDR")
	mustBind("cors_origins", "AYUDANTE_CORS_ORIGINS")
	mustBind("trust_proxy", "AYUDANTE_TRUST_PROXY")
	mustBind("rate_limit_requests", "AYUDANTE_RATE_LIMIT_REQUESTS")
	mustBind("rate_limit_window", "AYUDANTE_RATE_LIMIT_WINDOW")
	mustBind("otlp_endpoint", "AYUDANTE_OTLP_ENDPOINT")
	mustBind("environment", "AYUDANTE_ENVIRONMENT")
}

// maskedValue uses full-width block characters so masked output can never
// be a substring of the real secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 characters or
// fewer are fully masked; longer ones show the first and last two
// characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.AnthropicAPIKey = maskSecret(a.AnthropicAPIKey)
	a.VoyageAPIKey = maskSecret(a.VoyageAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.HMACSecret = maskSecret(a.HMACSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
