package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/turnforge/agentcore/internal/protocol"
)

// Config is the resolved set of credentials/model selection handed to the
// factory. Loading it from files/env is internal/config's job; this package
// only turns an already-resolved Config into a live Provider.
type Config struct {
	Name  string // "anthropic", "openai", "gemini", "bedrock"
	Model string

	AnthropicAPIKey string

	OpenAIAPIKey string

	GeminiAPIKey string

	BedrockRegion          string
	BedrockAccessKeyID     string
	BedrockSecretAccessKey string
	BedrockSessionToken    string
}

// ParseProviderModel parses "provider:model" or a bare "provider" string.
func ParseProviderModel(s string) (name, model string, err error) {
	parts := strings.SplitN(s, ":", 2)
	name = parts[0]
	if len(parts) == 2 {
		model = parts[1]
	}
	switch name {
	case "anthropic", "openai", "gemini", "bedrock":
		return name, model, nil
	default:
		return "", "", fmt.Errorf("unknown provider: %s (valid: anthropic, openai, gemini, bedrock)", name)
	}
}

// New resolves cfg into a live Provider, wrapped with the module's default
// retry policy.
func New(ctx context.Context, cfg Config, info protocol.ModelInfo) (Provider, error) {
	var p Provider
	var err error

	switch cfg.Name {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic: api key not configured (set ANTHROPIC_API_KEY or providers.anthropic.api_key)")
		}
		p, err = NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.Model, info)

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai: api key not configured (set OPENAI_API_KEY or providers.openai.api_key)")
		}
		p = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.Model, info)

	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini: api key not configured (set GEMINI_API_KEY or providers.gemini.api_key)")
		}
		p = NewGeminiProvider(cfg.GeminiAPIKey, cfg.Model, info)

	case "bedrock":
		p, err = NewBedrockProvider(ctx, BedrockConfig{
			Region:          cfg.BedrockRegion,
			AccessKeyID:     cfg.BedrockAccessKeyID,
			SecretAccessKey: cfg.BedrockSecretAccessKey,
			SessionToken:    cfg.BedrockSessionToken,
			ModelID:         cfg.Model,
		}, info)

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Name)
	}

	if err != nil {
		return nil, err
	}
	return WrapWithRetry(p, DefaultRetryConfig()), nil
}
