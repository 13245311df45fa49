package qualification

import (
	"fmt"
	"sort"
	"strings"
)

// historyWindow bounds how many trailing messages are replayed into a
// continuation prompt.
const historyWindow = 10

const systemPromptTemplate = `Você é um assistente virtual especializado em qualificação de leads para um CRM profissional.

OBJETIVO:
Coletar informações estratégicas do cliente de forma natural e profissional,
para que um atendente humano possa dar continuidade com contexto completo.

REGRAS IMPORTANTES:
1. Seja DIRETO - não faça mais de 2 perguntas por mensagem
2. NÃO repita perguntas já respondidas
3. Se o cliente demonstrar urgência, priorize contato rápido
4. NUNCA prometa o que não pode cumprir
5. Confirme dados importantes (nome, telefone, email)

INFORMAÇÕES ESTRATÉGICAS PARA COLETAR:
%s

ESTILO DE COMUNICAÇÃO:
- Mensagens curtas (máximo 3 linhas)
- Uma pergunta de cada vez, no máximo duas relacionadas
- Seja adaptativo ao tom do cliente

QUANDO ENCAMINHAR PARA HUMANO:
- Cliente explicitamente pede falar com pessoa
- Situação complexa que requer expertise
- Após %d tentativas sem sucesso`

const firstContactTemplate = `Mensagem do cliente: %q

Esta é a primeira interação. Responda de forma acolhedora:
1. Agradeça o contato
2. Faça UMA pergunta estratégica relevante baseada na mensagem dele
3. Seja breve (máximo 2 linhas)

Se a mensagem já contém informações valiosas, reconheça isso antes de perguntar mais.`

const continueTemplate = `Histórico da conversa:
%s

Dados já coletados:
%s

Dados ainda necessários:
%s

Última mensagem do cliente: %q

INSTRUÇÕES:
1. Analise se a última mensagem responde alguma pergunta anterior
2. Se tiver informações suficientes, agradeça e informe que um especialista entrará em contato
3. Caso contrário, faça a PRÓXIMA pergunta mais relevante
4. Seja natural - não pareça um interrogatório

Responda ao cliente:`

const extractTemplate = `Da seguinte conversa, extraia as informações estruturadas:

Conversa:
%s

Extraia no formato JSON:
%s

Regras:
- Se uma informação não estiver clara, use null
- Normalize telefones para formato brasileiro
- Capitalize nomes próprios
- Retorne APENAS o JSON, sem explicações`

// classifyUrgencyTemplate exists in the original template set but the scoring
// path uses the static keyword table instead of calling the backend.
// TODO: decide whether backend-based urgency classification should replace
// the keyword table before wiring this in.
const classifyUrgencyTemplate = `Analise esta mensagem e classifique a urgência:

%q

Níveis:
- baixa: Cliente fazendo pesquisa inicial, sem pressa
- media: Cliente interessado, tempo normal de resposta
- alta: Cliente com necessidade específica, quer resposta rápida
- urgente: Palavras como "urgente", "hoje", "agora", problema crítico

Responda APENAS com: baixa, media, alta ou urgente`

// FallbackReply is sent when the generation backend is degraded. The lead
// always gets a response; the conversation stays in progress.
const FallbackReply = "Desculpe, estou com dificuldades técnicas no momento. " +
	"Um atendente entrará em contato em breve. Obrigado pela paciência!"

// PromptBuilder renders backend instructions from conversation snapshots.
// All functions are pure; user-supplied text is always embedded as a quoted
// value and never interpreted as template syntax.
type PromptBuilder struct{}

// NewPromptBuilder returns a stateless prompt builder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// SystemPrompt renders the base system instruction for the given criteria.
func (b *PromptBuilder) SystemPrompt(criteria Criteria) string {
	return fmt.Sprintf(systemPromptTemplate, formatFieldList(criteria.RequiredFields), criteria.MaxAttempts)
}

// FirstContact renders the opening-turn instruction. Used when attempts == 1.
func (b *PromptBuilder) FirstContact(message string) string {
	return fmt.Sprintf(firstContactTemplate, message)
}

// ContinueConversation renders the follow-up instruction with the trailing
// history window, the facts collected so far, and what is still missing.
func (b *PromptBuilder) ContinueConversation(history []Message, collected map[string]string, missing []string, message string) string {
	missingText := "Todos os dados coletados"
	if len(missing) > 0 {
		missingText = strings.Join(missing, ", ")
	}
	return fmt.Sprintf(continueTemplate,
		formatHistory(history),
		formatCollected(collected),
		missingText,
		message,
	)
}

// ExtractData renders the structured-extraction instruction for the schema.
func (b *PromptBuilder) ExtractData(conversationText string, schema map[string]string) string {
	fields := make([]string, 0, len(schema))
	for _, field := range sortedSchemaKeys(schema) {
		fields = append(fields, fmt.Sprintf("  %q: %q", field, schema[field]))
	}
	schemaText := "{\n" + strings.Join(fields, ",\n") + "\n}"
	return fmt.Sprintf(extractTemplate, conversationText, schemaText)
}

// ClassifyUrgency renders the urgency classification instruction.
func (b *PromptBuilder) ClassifyUrgency(message string) string {
	return fmt.Sprintf(classifyUrgencyTemplate, message)
}

// HandoffMessage builds the reply sent when the lead is handed to a human.
func (b *PromptBuilder) HandoffMessage(name string) string {
	greeting := "Perfeito!"
	if name != "" {
		greeting = fmt.Sprintf("Perfeito, %s!", name)
	}
	return greeting + " Coletei as informações principais. Um especialista da nossa equipe " +
		"vai entrar em contato com você em breve para dar continuidade. Obrigado pela atenção!"
}

// DisqualificationMessage builds the reply sent when the lead does not
// qualify.
func (b *PromptBuilder) DisqualificationMessage(name, reason string) string {
	greeting := "Agradeço muito pelo seu contato!"
	if name != "" {
		greeting = fmt.Sprintf("Agradeço muito pelo seu contato, %s!", name)
	}
	if reason == "" {
		reason = "não conseguimos dar continuidade ao seu atendimento"
	}
	return fmt.Sprintf("%s No momento, %s. Fique à vontade para entrar em contato novamente!", greeting, reason)
}

// ConversationText flattens the history window into plain text for the
// extraction prompt.
func (b *PromptBuilder) ConversationText(history []Message) string {
	return formatHistory(history)
}

func formatHistory(history []Message) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := "Você"
		if msg.Role == RoleUser {
			role = "Cliente"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return strings.Join(lines, "\n")
}

func formatCollected(collected map[string]string) string {
	lines := make([]string, 0, len(collected))
	for _, field := range sortedKeys(collected) {
		if value := collected[field]; value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", field, value))
		}
	}
	if len(lines) == 0 {
		return "Nenhum dado coletado ainda"
	}
	return strings.Join(lines, "\n")
}

func formatFieldList(fields []string) string {
	lines := make([]string, 0, len(fields))
	for _, field := range fields {
		lines = append(lines, "- "+field)
	}
	return strings.Join(lines, "\n")
}

func sortedSchemaKeys(schema map[string]string) []string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
