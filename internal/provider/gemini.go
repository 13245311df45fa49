package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements AIProvider using Google's Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	modelID string
}

// NewGeminiProvider creates a Gemini-backed provider. The model defaults to
// gemini-2.5-flash when empty.
func NewGeminiProvider(ctx context.Context, apiKey, modelID string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("provider: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, modelID: modelID}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// GenerateResponse replays the history through a Gemini chat session and
// sends the final message.
func (p *GeminiProvider) GenerateResponse(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "", newError(p.Name(), "generate", errors.New("at least one message is required"))
	}

	model := p.client.GenerativeModel(p.modelID)
	if opts.Temperature >= 0 {
		model.SetTemperature(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}

	var systemParts []string
	cs := model.StartChat()
	for _, msg := range messages[:len(messages)-1] {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, content)
			continue
		}
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}

	last := messages[len(messages)-1]
	if last.Role == RoleSystem {
		systemParts = append(systemParts, last.Content)
		last = Message{Role: RoleUser, Content: "Responda conforme as instruções."}
	}
	if len(systemParts) > 0 {
		model.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(systemParts, "\n\n")))
	}

	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return "", newError(p.Name(), "generate", err)
	}
	if len(resp.Candidates) == 0 {
		return "", newError(p.Name(), "generate", errors.New("no candidates returned"))
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", newError(p.Name(), "generate", errors.New("empty content returned"))
	}

	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	text := strings.TrimSpace(builder.String())
	if err := validateResponse(text); err != nil {
		return "", newError(p.Name(), "generate", err)
	}
	return text, nil
}

// ExtractStructuredData asks the model for JSON and degrades to an all-null
// map when the response does not parse.
func (p *GeminiProvider) ExtractStructuredData(ctx context.Context, text string, schema map[string]string) (map[string]*string, error) {
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
func (p *GeminiProvider) HealthCheck(ctx context.Context) bool {
	_, err := p.GenerateResponse(ctx, []Message{{Role: RoleUser, Content: "ping"}}, GenerateOptions{MaxTokens: 5, Temperature: 0})
	return err == nil
}

// Close releases resources held by the Gemini client.
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
