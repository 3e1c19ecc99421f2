package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates a provider from configuration. An empty provider
// name falls back to the heuristic provider; an unknown name is a
// configuration error.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "", "heuristic":
		return NewHeuristicProvider(), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, heuristic)", config.Provider)
	}
}
