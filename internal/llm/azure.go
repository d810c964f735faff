package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"

	"taboon/internal/models"
)

// AzureProvider implements Provider on an Azure OpenAI deployment
type AzureProvider struct {
	client         *azopenai.Client
	deploymentName string
	temperature    float32
	maxTokens      int32
}

// NewAzureProvider creates a provider from the azure_* settings
func NewAzureProvider(cfg Config) (*AzureProvider, error) {
	if cfg.AzureEndpoint == "" || cfg.AzureAPIKey == "" || cfg.AzureDeployment == "" {
		return nil, errors.New("Azure OpenAI configuration missing: set AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY and AZURE_OPENAI_DEPLOYMENT_NAME")
	}

	client, err := azopenai.NewClientWithKeyCredential(cfg.AzureEndpoint, azcore.NewKeyCredential(cfg.AzureAPIKey), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure OpenAI client: %w", err)
	}

	return &AzureProvider{
		client:         client,
		deploymentName: cfg.AzureDeployment,
		temperature:    float32(cfg.Temperature),
		maxTokens:      int32(cfg.MaxTokens),
	}, nil
}

// Name returns the provider name
func (p *AzureProvider) Name() string {
	return ProviderAzure
}

func toAzureMessages(messages []Message) ([]azopenai.ChatRequestMessageClassification, error) {
	out := make([]azopenai.ChatRequestMessageClassification, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out[i] = &azopenai.ChatRequestSystemMessage{
				Content: azopenai.NewChatRequestSystemMessageContent(msg.Content),
			}
		case RoleUser:
			out[i] = &azopenai.ChatRequestUserMessage{
				Content: azopenai.NewChatRequestUserMessageContent(msg.Content),
			}
		case RoleAssistant:
			out[i] = &azopenai.ChatRequestAssistantMessage{
				Content: azopenai.NewChatRequestAssistantMessageContent(msg.Content),
			}
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	return out, nil
}

// Complete implements the Provider interface
func (p *AzureProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	chatMessages, err := toAzureMessages(messages)
	if err != nil {
		return "", err
	}

	resp, err := p.client.GetChatCompletions(ctx, azopenai.ChatCompletionsOptions{
		Messages:       chatMessages,
		MaxTokens:      to.Ptr(p.maxTokens),
		Temperature:    to.Ptr(p.temperature),
		DeploymentName: to.Ptr(p.deploymentName),
	}, nil)
	if err != nil {
		return "", &models.UpstreamServiceError{Provider: p.Name(), Err: err}
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return "", &models.UpstreamServiceError{Provider: p.Name(), Err: errors.New("empty response")}
	}
	return *resp.Choices[0].Message.Content, nil
}
