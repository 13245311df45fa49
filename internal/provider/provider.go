// Package provider abstracts the remote text-generation backends used for
// lead replies and structured extraction. Implementations are selected at
// construction time; callers program against AIProvider only.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// maxResponseChars caps generated replies; anything longer is treated as a
// malformed response.
const maxResponseChars = 10000

// Message is the provider-neutral chat message representation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float32
}

// DefaultGenerateOptions returns the settings used for lead-facing replies.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{MaxTokens: 150, Temperature: 0.7}
}

// extractionOptions keeps extraction deterministic.
var extractionOptions = GenerateOptions{MaxTokens: 500, Temperature: 0.1}

// AIProvider is the capability interface over a text-generation backend.
type AIProvider interface {
	// GenerateResponse produces the next assistant reply for the given
	// history. Fails with *Error on transport trouble, timeouts, and
	// empty or oversized responses.
	GenerateResponse(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)

	// ExtractStructuredData pulls the schema's fields out of free text.
	// A response that does not parse as the expected structure is not an
	// error: every schema key comes back nil instead.
	ExtractStructuredData(ctx context.Context, text string, schema map[string]string) (map[string]*string, error)

	// HealthCheck reports whether the backend is currently usable.
	HealthCheck(ctx context.Context) bool

	// Name identifies the backend in logs and errors.
	Name() string
}

// Error wraps a backend failure with the provider and operation that
// produced it.
type Error struct {
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(providerName, op string, err error) *Error {
	return &Error{Provider: providerName, Op: op, Err: err}
}

// validateResponse rejects empty and oversized generations.
func validateResponse(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty response")
	}
	if len(text) > maxResponseChars {
		return fmt.Errorf("response exceeds %d chars", maxResponseChars)
	}
	return nil
}

// extractionPrompt builds the provider-side instruction for structured
// extraction.
func extractionPrompt(text string, schema map[string]string) string {
	schemaJSON, _ := json.MarshalIndent(schema, "", "  ")
	return fmt.Sprintf(`Extraia as seguintes informações do texto abaixo e retorne em formato JSON.

Schema esperado:
%s

Texto:
%s

Retorne APENAS o JSON, sem explicações.`, schemaJSON, text)
}

const extractionSystemPrompt = "Você é um extrator de dados especializado. Retorne apenas JSON válido."

// decodeExtraction parses a raw extraction response. Markdown code fences
// are tolerated. Any parse failure degrades to an all-null map.
func decodeExtraction(raw string, schema map[string]string) map[string]*string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimPrefix(cleaned, "json")
		if idx := strings.Index(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nullExtraction(schema)
	}

	result := nullExtraction(schema)
	for field := range schema {
		value, ok := decoded[field]
		if !ok || value == nil {
			continue
		}
		var text string
		switch v := value.(type) {
		case string:
			text = strings.TrimSpace(v)
		case float64:
			text = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
		case bool:
			text = fmt.Sprintf("%t", v)
		default:
			continue
		}
		if text != "" {
			result[field] = &text
		}
	}
	return result
}

// nullExtraction returns the degraded all-null field map for a schema.
func nullExtraction(schema map[string]string) map[string]*string {
	result := make(map[string]*string, len(schema))
	for field := range schema {
		result[field] = nil
	}
	return result
}
