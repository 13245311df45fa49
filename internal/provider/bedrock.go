package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements AIProvider on the Bedrock Converse API.
type BedrockProvider struct {
	api     bedrockConverseAPI
	modelID string
}

// NewBedrockProvider wraps a Bedrock runtime client for the given model.
func NewBedrockProvider(api bedrockConverseAPI, modelID string) (*BedrockProvider, error) {
	if api == nil {
		return nil, errors.New("provider: bedrock converse client cannot be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("provider: bedrock model id is required")
	}
	return &BedrockProvider{api: api, modelID: modelID}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

// GenerateResponse sends the history through Converse and extracts the text
// content blocks.
func (p *BedrockProvider) GenerateResponse(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	var systemBlocks []brtypes.SystemContentBlock
	converseMessages := make([]brtypes.Message, 0, len(messages))

	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: content})
		case RoleUser:
			converseMessages = append(converseMessages, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: content},
				},
			})
		case RoleAssistant:
			converseMessages = append(converseMessages, brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: content},
				},
			})
		default:
			return "", newError(p.Name(), "generate", fmt.Errorf("unsupported role %q", msg.Role))
		}
	}

	inference := &brtypes.InferenceConfiguration{}
	if opts.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(opts.MaxTokens))
	}
	if opts.Temperature >= 0 {
		inference.Temperature = aws.Float32(opts.Temperature)
	}

	out, err := p.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(p.modelID),
		System:          systemBlocks,
		Messages:        converseMessages,
		InferenceConfig: inference,
	})
	if err != nil {
		return "", newError(p.Name(), "generate", err)
	}

	text, err := bedrockOutputText(out)
	if err != nil {
		return "", newError(p.Name(), "generate", err)
	}
	if err := validateResponse(text); err != nil {
		return "", newError(p.Name(), "generate", err)
	}
	return text, nil
}

// ExtractStructuredData asks the model for JSON and degrades to an all-null
// map when the response does not parse.
func (p *BedrockProvider) ExtractStructuredData(ctx context.Context, text string, schema map[string]string) (map[string]*string, error) {
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
func (p *BedrockProvider) HealthCheck(ctx context.Context) bool {
	_, err := p.GenerateResponse(ctx, []Message{{Role: RoleUser, Content: "ping"}}, GenerateOptions{MaxTokens: 5, Temperature: 0})
	return err == nil
}

func bedrockOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("response did not include a message output")
	}
	if len(msgOut.Value.Content) == 0 {
		return "", errors.New("response message was empty")
	}

	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("response contained no text content blocks")
	}
	return text, nil
}
