package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"normal reply", "Olá! Como posso ajudar?", false},
		{"empty", "", true},
		{"whitespace only", "   \n\t", true},
		{"at the cap", strings.Repeat("a", maxResponseChars), false},
		{"over the cap", strings.Repeat("a", maxResponseChars+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponse(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodeExtraction(t *testing.T) {
	schema := map[string]string{"name": "string", "phone": "string", "interest": "string"}

	t.Run("plain json", func(t *testing.T) {
		fields := decodeExtraction(`{"name": "Ana", "phone": null, "interest": "produto"}`, schema)
		require.NotNil(t, fields["name"])
		assert.Equal(t, "Ana", *fields["name"])
		assert.Nil(t, fields["phone"])
		require.NotNil(t, fields["interest"])
		assert.Equal(t, "produto", *fields["interest"])
	})

	t.Run("markdown fenced json", func(t *testing.T) {
		raw := "```json\n{\"name\": \"Ana\"}\n```"
		fields := decodeExtraction(raw, schema)
		require.NotNil(t, fields["name"])
		assert.Equal(t, "Ana", *fields["name"])
		assert.Nil(t, fields["phone"])
	})

	t.Run("parse failure degrades to all null", func(t *testing.T) {
		fields := decodeExtraction("desculpe, não consegui extrair", schema)
		assert.Len(t, fields, len(schema))
		for field, value := range fields {
			assert.Nil(t, value, "field %s should be nil", field)
		}
	})

	t.Run("extra keys outside the schema are dropped", func(t *testing.T) {
		fields := decodeExtraction(`{"name": "Ana", "unexpected": "x"}`, schema)
		assert.Len(t, fields, len(schema))
		_, ok := fields["unexpected"]
		assert.False(t, ok)
	})

	t.Run("numeric and boolean values are stringified", func(t *testing.T) {
		numSchema := map[string]string{"budget": "string", "confirmed": "string"}
		fields := decodeExtraction(`{"budget": 1500, "confirmed": true}`, numSchema)
		require.NotNil(t, fields["budget"])
		assert.Equal(t, "1500", *fields["budget"])
		require.NotNil(t, fields["confirmed"])
		assert.Equal(t, "true", *fields["confirmed"])
	})

	t.Run("empty string treated as null", func(t *testing.T) {
		fields := decodeExtraction(`{"name": "  "}`, schema)
		assert.Nil(t, fields["name"])
	})
}

func TestExtractionPromptIncludesSchemaAndText(t *testing.T) {
	prompt := extractionPrompt("Cliente: oi, sou a Ana", map[string]string{"name": "string"})

	assert.Contains(t, prompt, "Cliente: oi, sou a Ana")
	assert.Contains(t, prompt, `"name"`)
	assert.Contains(t, prompt, "APENAS o JSON")
}

func TestErrorWrapping(t *testing.T) {
	inner := assert.AnError
	err := newError("openai", "generate", inner)

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "openai")
	assert.Contains(t, err.Error(), "generate")
}
