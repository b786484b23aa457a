package ai

import (
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/kiranshivaraju/portalpilot/internal/config"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

// Every supported backend speaks the OpenAI chat completions protocol; they
// differ only in where they live and which model they default to.
var providerDefaults = map[string]ProviderOptions{
	"ollama":    {BaseURL: "http://localhost:11434/v1", APIKey: "ollama", Model: "llama3"},
	"vllm":      {APIKey: "EMPTY"},
	"openai":    {Model: "gpt-4o-mini"},
	"anthropic": {BaseURL: "https://api.anthropic.com/v1/", Model: "claude-sonnet-4-5"},
}

// NewProvider constructs the appropriate AI provider based on config.
// Called once at startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	opts, ok := providerDefaults[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}

	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}
	if cfg.APIKey != "" {
		opts.APIKey = cfg.APIKey
	}
	if cfg.Model != "" {
		opts.Model = cfg.Model
	}
	opts.StructuredOutput = cfg.StructuredOutput

	if opts.Model == "" {
		return nil, fmt.Errorf("MODEL_NAME is required for AI provider %q", cfg.Provider)
	}
	if opts.BaseURL == "" && cfg.Provider == "vllm" {
		return nil, fmt.Errorf("API_BASE_URL is required for AI provider %q", cfg.Provider)
	}

	return NewOpenAIProvider(cfg.Provider, opts), nil
}

// SchemaFor reflects a strict JSON schema for T, suitable for
// ChatRequest.Schema.
func SchemaFor[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
