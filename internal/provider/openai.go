package provider

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// chatClient is the slice of the OpenAI SDK the provider needs. Tests swap
// in a fake.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider implements AIProvider on the OpenAI chat completions API.
type OpenAIProvider struct {
	client chatClient
	model  string
}

// NewOpenAIProvider wraps an OpenAI client. The model defaults to
// gpt-4o-mini when empty.
func NewOpenAIProvider(client chatClient, model string) *OpenAIProvider {
	if client == nil {
		panic("provider: openai client cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{client: client, model: model}
}

// NewOpenAIProviderFromKey builds the provider from an API key.
func NewOpenAIProviderFromKey(apiKey, model string) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("provider: openai api key is required")
	}
	return NewOpenAIProvider(openai.NewClient(apiKey), model), nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// GenerateResponse sends the history to the chat completions endpoint.
func (p *OpenAIProvider) GenerateResponse(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", newError(p.Name(), "generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", newError(p.Name(), "generate", errors.New("no choices returned"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := validateResponse(text); err != nil {
		return "", newError(p.Name(), "generate", err)
	}
	return text, nil
}

// ExtractStructuredData asks the model for JSON and degrades to an all-null
// map when the response does not parse.
func (p *OpenAIProvider) ExtractStructuredData(ctx context.Context, text string, schema map[string]string) (map[string]*string, error) {
	messages := []Message{
		{Role: RoleSystem, Content: extractionSystemPrompt},
		{Role: RoleUser, Content: extractionPrompt(text, schema)},
	}
	raw, err := p.GenerateResponse(ctx, messages, extractionOptions)
	if err != nil {
		return nil, err
	}
	return decodeExtraction(raw, schema), nil
}

// HealthCheck issues a minimal completion.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) bool {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
		MaxTokens: 5,
	})
	return err == nil && len(resp.Choices) > 0
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}
