package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIProvider implements Provider for OpenAI and any OpenAI-compatible API
// (Groq is served through the same client with a different base URL).
type OpenAIProvider struct {
	name   string
	model  string
	client *openai.Client
}

// OpenAIConfig holds configuration for an OpenAI-compatible provider.
type OpenAIConfig struct {
	Name    string // provider name reported in results, defaults to "openai"
	APIKey  string
	Model   string // e.g., "gpt-4o-mini"
	BaseURL string // optional override
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// NewGroqProvider creates a provider for Groq's OpenAI-compatible endpoint.
func NewGroqProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return NewOpenAIProvider(OpenAIConfig{
		Name:    "groq",
		APIKey:  apiKey,
		Model:   model,
		BaseURL: groqBaseURL,
	})
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the configured model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}

	if len(req.Functions) > 0 {
		tools := make([]openai.Tool, 0, len(req.Functions))
		for _, f := range req.Functions {
			tools = append(tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        f.Name,
					Description: f.Description,
					Parameters:  f.Parameters,
				},
			})
		}
		chatReq.Tools = tools
		chatReq.ToolChoice = "auto"
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("%s: create completion: %w", p.name, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", p.name)
	}

	msg := resp.Choices[0].Message
	out := &ChatResponse{
		Content: msg.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}

	// Only the first tool call is acted on.
	if len(msg.ToolCalls) > 0 {
		out.FunctionCall = &FunctionCall{
			Name:      msg.ToolCalls[0].Function.Name,
			Arguments: msg.ToolCalls[0].Function.Arguments,
		}
	}

	return out, nil
}
