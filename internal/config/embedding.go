package config

import (
	"fmt"
	"os"
	"time"
)

// Embedding write modes.
const (
	WriteModeAsync = "async" // queue the embedding for a background worker
	WriteModeSync  = "sync"  // embed inline after the visit is stored
)

// EmbeddingConfig configures the single embedding provider that defines the corpus dimension.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`     // jina, openai-compatible, local
	Model      string `mapstructure:"model"`        // stamped on every stored vector
	APIKey     string `mapstructure:"api_key"`      // takes precedence over APIKeyEnv
	APIKeyEnv  string `mapstructure:"api_key_env"`  // env var holding the API key
	BaseURL    string `mapstructure:"base_url"`     // API root, e.g. https://api.jina.ai/v1
	BaseURLEnv string `mapstructure:"base_url_env"` // env var holding the base URL
	Dimensions int    `mapstructure:"dimensions"`

	Timeout       time.Duration `mapstructure:"timeout"`         // per embed call
	MaxInputRunes int           `mapstructure:"max_input_runes"` // longer input is cut
	WriteMode     string        `mapstructure:"write_mode"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
}

// ResolveEnvVars fills APIKey and BaseURL from their env var names when not set directly.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		c.BaseURL = os.Getenv(c.BaseURLEnv)
	}
}

// Validate reports the first structural problem in the configuration.
// A missing API key is not checked here; the provider reports it on Initialize.
func (c *EmbeddingConfig) Validate() error {
	switch c.Provider {
	case "jina", "openai-compatible", "local":
	case "":
		return fmt.Errorf("embedding: provider is required")
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding %q: model is required", c.Provider)
	}
	if c.Provider == "openai-compatible" && c.BaseURL == "" && c.BaseURLEnv == "" {
		return fmt.Errorf("embedding %q: base_url is required", c.Provider)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding %q: dimensions must be positive", c.Provider)
	}
	switch c.WriteMode {
	case WriteModeAsync, WriteModeSync, "":
	default:
		return fmt.Errorf("embedding: unknown write_mode %q", c.WriteMode)
	}
	return nil
}

// RequestTimeout returns the per-call bound, defaulting to 10s.
func (c *EmbeddingConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}
