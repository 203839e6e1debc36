package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidSearchTopK indicates the search top-k value is out of range.
	ErrInvalidSearchTopK = errors.New("invalid search top-k")

	// ErrInvalidSearchThreshold indicates the similarity threshold is out of range.
	ErrInvalidSearchThreshold = errors.New("invalid search threshold")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRateLimit indicates the rate limit configuration is invalid.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrMissingHMACSecret indicates the HMAC secret is not set.
	ErrMissingHMACSecret = errors.New("missing HMAC secret")

	// ErrInvalidHMACSecret indicates the HMAC secret is too short.
	ErrInvalidHMACSecret = errors.New("invalid HMAC secret")
)

// Validate validates configuration values shared by all subcommands.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("%w: ANTHROPIC_API_KEY environment variable is required", ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Anthropic API accepts temperature in [0.0, 1.0].
	if c.Temperature < 0.0 || c.Temperature > 1.0 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 64000 {
		return fmt.Errorf("%w: must be between 1 and 64,000, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.SearchTopK < 1 || c.SearchTopK > 10 {
		return fmt.Errorf("%w: must be between 1 and 10, got %d", ErrInvalidSearchTopK, c.SearchTopK)
	}

	if c.SearchThreshold < 0.0 || c.SearchThreshold > 1.0 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f", ErrInvalidSearchThreshold, c.SearchThreshold)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "ayudante_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Deprecated allow/prefer modes are excluded.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.RateLimitRequests < 1 {
		return fmt.Errorf("%w: rate_limit_requests must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimitRequests)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("%w: rate_limit_window must be positive, got %s", ErrInvalidRateLimit, c.RateLimitWindow)
	}

	return nil
}

// ValidateServe validates configuration required only by the HTTP server.
func (c *Config) ValidateServe() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.HMACSecret == "" {
		return fmt.Errorf("%w: HMAC_SECRET environment variable is required for serve", ErrMissingHMACSecret)
	}
	if len(c.HMACSecret) < 32 {
		return fmt.Errorf("%w: must be at least 32 characters (got %d)", ErrInvalidHMACSecret, len(c.HMACSecret))
	}

	if c.VoyageAPIKey == "" {
		return fmt.Errorf("%w: VOYAGE_API_KEY environment variable is required for serve", ErrMissingAPIKey)
	}

	return nil
}

// ValidateIndex validates configuration required by the index subcommand.
func (c *Config) ValidateIndex() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.VoyageAPIKey == "" {
		return fmt.Errorf("%w: VOYAGE_API_KEY environment variable is required for index", ErrMissingAPIKey)
	}
	return nil
}
