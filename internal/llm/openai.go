package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/ppiankov/storyline/internal/extract"
)

// OpenAIProvider implements the Provider interface for OpenAI models.
type OpenAIProvider struct {
	client  *openai.Client
	config  Config
	limiter *rate.Limiter
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 5
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return "openai" }

// IsAvailable checks if the provider is properly configured.
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Summarize condenses one titled text into sentences.
func (p *OpenAIProvider) Summarize(ctx context.Context, title, text string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following news article in at most 3 sentences. Respond with the summary only.\n\nTitle: %s\n\n%s",
		title, text)
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return extract.Sentences(raw), nil
}

// MultiSummarize condenses several member texts into one shared summary.
func (p *OpenAIProvider) MultiSummarize(ctx context.Context, texts []string) ([]string, error) {
	var b strings.Builder
	b.WriteString("Summarize what the following related news texts have in common, in at most 3 sentences. Respond with the summary only.\n")
	for i, text := range texts {
		fmt.Fprintf(&b, "\n--- Text %d ---\n%s\n", i+1, text)
	}
	raw, err := p.complete(ctx, b.String())
	if err != nil {
		return nil, err
	}
	return extract.Sentences(raw), nil
}

// ExtractConcepts returns concept identifiers mentioned in text.
func (p *OpenAIProvider) ExtractConcepts(ctx context.Context, text string) ([]string, error) {
	prompt := fmt.Sprintf(
		"List the named entities (people, places, organizations, topics) in the following text. Respond with one entity per line, nothing else.\n\n%s",
		text)
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var concepts []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(raw, "\n") {
		concept := strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if concept == "" || seen[concept] {
			continue
		}
		seen[concept] = true
		concepts = append(concepts, concept)
	}
	return concepts, nil
}

// complete runs one rate-limited chat completion and returns the response
// text.
func (p *OpenAIProvider) complete(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	model := p.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}
	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
