// Package llm provides the summarization and concept-extraction
// collaborators the clustering engine consumes. Providers are synchronous;
// retries belong to the caller, and per-item failures are recoverable.
package llm

import (
	"context"

	"github.com/ppiankov/storyline/internal/model"
)

// Provider is the external text-intelligence interface: summarize one
// text, summarize many texts into one digest, and extract concept
// identifiers from raw text.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Summarize condenses a single titled text into sentences.
	Summarize(ctx context.Context, title, text string) ([]string, error)

	// MultiSummarize condenses several member texts into one shared
	// summary, sentence per element.
	MultiSummarize(ctx context.Context, texts []string) ([]string, error)

	// ExtractConcepts returns concept identifiers mentioned in text.
	ExtractConcepts(ctx context.Context, text string) ([]string, error)

	// IsAvailable checks if the provider is configured and reachable.
	IsAvailable(ctx context.Context) bool
}

// Config holds provider configuration.
type Config struct {
	// Provider name: "openai" or "heuristic".
	Provider string

	// Model name (provider-specific).
	Model string

	// APIKey for hosted providers.
	APIKey string

	// BaseURL for custom endpoints.
	BaseURL string

	// Timeout per request, in seconds.
	Timeout int

	// MaxTokens for response generation.
	MaxTokens int

	// RequestsPerSecond rate-limits outbound calls; Burst is the limiter
	// burst size.
	RequestsPerSecond float64
	Burst             int
}

// ConfigFromModel converts the application config section.
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:          c.Provider,
		Model:             c.Model,
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		MaxTokens:         c.MaxTokens,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}
