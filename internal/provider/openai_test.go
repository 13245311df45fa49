package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatClient struct {
	response string
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.response}},
		},
	}, nil
}

func TestNewOpenAIProviderPanicsOnNilClient(t *testing.T) {
	assert.Panics(t, func() {
		NewOpenAIProvider(nil, "gpt-4o-mini")
	})
}

func TestNewOpenAIProviderDefaultsModel(t *testing.T) {
	p := NewOpenAIProvider(&fakeChatClient{}, "")
	assert.Equal(t, "gpt-4o-mini", p.model)
}

func TestNewOpenAIProviderFromKeyRequiresKey(t *testing.T) {
	_, err := NewOpenAIProviderFromKey("  ", "")
	assert.Error(t, err)
}

func TestOpenAIGenerateResponse(t *testing.T) {
	client := &fakeChatClient{response: "  Olá! Qual é o seu nome?  "}
	p := NewOpenAIProvider(client, "gpt-4o-mini")

	text, err := p.GenerateResponse(context.Background(), []Message{
		{Role: RoleSystem, Content: "você é um assistente"},
		{Role: RoleUser, Content: "oi"},
	}, DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Equal(t, "Olá! Qual é o seu nome?", text)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 150, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[1].Role)
}

func TestOpenAIGenerateResponseErrors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeChatClient
	}{
		{"transport failure", &fakeChatClient{err: errors.New("connection refused")}},
		{"empty response", &fakeChatClient{response: "   "}},
		{"oversized response", &fakeChatClient{response: strings.Repeat("a", maxResponseChars+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOpenAIProvider(tt.client, "")
			_, err := p.GenerateResponse(context.Background(),
				[]Message{{Role: RoleUser, Content: "oi"}}, DefaultGenerateOptions())

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "openai", perr.Provider)
			assert.Equal(t, "generate", perr.Op)
		})
	}
}

func TestOpenAIExtractStructuredData(t *testing.T) {
	client := &fakeChatClient{response: `{"name": "Ana", "phone": null}`}
	p := NewOpenAIProvider(client, "")
	schema := map[string]string{"name": "string", "phone": "string"}

	fields, err := p.ExtractStructuredData(context.Background(), "Cliente: sou a Ana", schema)
	require.NoError(t, err)
	require.NotNil(t, fields["name"])
	assert.Equal(t, "Ana", *fields["name"])
	assert.Nil(t, fields["phone"])

	// Extraction runs with the deterministic options, not the reply ones.
	require.Len(t, client.requests, 1)
	assert.Equal(t, extractionOptions.MaxTokens, client.requests[0].MaxTokens)
}

func TestOpenAIExtractStructuredDataUnparseable(t *testing.T) {
	client := &fakeChatClient{response: "não consegui"}
	p := NewOpenAIProvider(client, "")
	schema := map[string]string{"name": "string"}

	fields, err := p.ExtractStructuredData(context.Background(), "texto", schema)
	require.NoError(t, err)
	assert.Nil(t, fields["name"])
}

func TestOpenAIHealthCheck(t *testing.T) {
	healthy := NewOpenAIProvider(&fakeChatClient{response: "pong"}, "")
	assert.True(t, healthy.HealthCheck(context.Background()))

	sick := NewOpenAIProvider(&fakeChatClient{err: errors.New("down")}, "")
	assert.False(t, sick.HealthCheck(context.Background()))
}
