package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Role values accepted in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request mirrors the chat.completions call shape used across the pipeline.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a single JSON object response.
	JSONMode bool
}

// Response is the text returned by a provider.
type Response struct {
	Content string
	Model   string
}

// Client is the text-completion boundary. Every pipeline component talks to
// the provider through this interface only.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider    string // openai, anthropic, gemini, nova
	Model       string
	APIKey      string
	BaseURL     string
	MaxAttempts int
}

var defaultModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-sonnet-4-5-20250929",
	"gemini":    "gemini-2.5-flash",
	"nova":      "us.amazon.nova-2-lite-v1:0",
}

// ProviderNames returns the supported provider identifiers.
func ProviderNames() []string {
	return []string{"openai", "anthropic", "gemini", "nova"}
}

// ConfigFromEnv reads the provider configuration from the environment.
func ConfigFromEnv() Config {
	cfg := Config{
		Provider:    envOr("LLM_PROVIDER", "openai"),
		Model:       os.Getenv("LLM_MODEL"),
		BaseURL:     os.Getenv("OPENAI_BASE_URL"),
		MaxAttempts: 1,
	}
	if v := os.Getenv("LLM_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAttempts = n
		}
	}
	switch cfg.Provider {
	case "openai":
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	return cfg
}

// New creates a Client for the configured provider.
func New(cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[provider]
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	switch provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("missing OPENAI_API_KEY")
		}
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
		}
		return NewAnthropicClient(cfg), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("missing GEMINI_API_KEY")
		}
		return NewGeminiClient(cfg), nil
	case "nova":
		return NewNovaClient(context.Background(), cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: choose %s", cfg.Provider, strings.Join(ProviderNames(), ", "))
	}
}

// Text is a convenience wrapper for a single system+user exchange.
func Text(ctx context.Context, c Client, req Request) (string, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
