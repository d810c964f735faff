package llm

import (
	"context"
	"fmt"
	"time"
)

// Chat roles understood by every provider
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider turns a conversation into the next assistant reply
type Provider interface {
	Name() string
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Config selects and tunes the text-generation backend
type Config struct {
	Provider         string        `yaml:"provider"`
	APIKey           string        `yaml:"api_key"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"base_url"`
	Temperature      float64       `yaml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
	SystemPromptFile string        `yaml:"system_prompt_file"`

	AzureEndpoint   string `yaml:"azure_endpoint"`
	AzureAPIKey     string `yaml:"azure_api_key"`
	AzureDeployment string `yaml:"azure_deployment"`
}

// Provider names accepted in Config.Provider
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// DefaultConfig mirrors the settings the assistant was tuned with
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   500,
		Timeout:     30 * time.Second,
	}
}

// New builds the provider named in cfg
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIProvider(cfg)
	case ProviderAzure:
		return NewAzureProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
