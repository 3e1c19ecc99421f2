package llm

import (
	"context"

	"github.com/ppiankov/storyline/internal/extract"
)

// maxSummarySentences caps heuristic summaries.
const maxSummarySentences = 3

// HeuristicProvider is the deterministic, network-free provider: leading
// sentences for summaries and capitalized-run detection for concepts. It
// is the default provider and the one tests run against.
type HeuristicProvider struct{}

// NewHeuristicProvider creates the heuristic provider.
func NewHeuristicProvider() *HeuristicProvider {
	return &HeuristicProvider{}
}

// Name returns the provider name.
func (p *HeuristicProvider) Name() string { return "heuristic" }

// IsAvailable always reports true; there is nothing to reach.
func (p *HeuristicProvider) IsAvailable(ctx context.Context) bool { return true }

// Summarize returns the leading sentences of text.
func (p *HeuristicProvider) Summarize(ctx context.Context, title, text string) ([]string, error) {
	sentences := extract.Sentences(text)
	if len(sentences) > maxSummarySentences {
		sentences = sentences[:maxSummarySentences]
	}
	return sentences, nil
}

// MultiSummarize returns the first sentence of each text, up to the cap,
// so every member contributes before any member contributes twice.
func (p *HeuristicProvider) MultiSummarize(ctx context.Context, texts []string) ([]string, error) {
	var out []string
	for _, text := range texts {
		sentences := extract.Sentences(text)
		if len(sentences) == 0 {
			continue
		}
		out = append(out, sentences[0])
		if len(out) == maxSummarySentences {
			break
		}
	}
	return out, nil
}

// ExtractConcepts detects capitalized proper-noun runs in text.
func (p *HeuristicProvider) ExtractConcepts(ctx context.Context, text string) ([]string, error) {
	return extract.Concepts(text), nil
}
