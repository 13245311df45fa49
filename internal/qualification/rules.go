package qualification

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Score weights. Completeness and engagement both saturate at five items,
// positive signals at three hits.
const (
	completenessWeight   = 40
	engagementWeight     = 30
	positiveWeight       = 20
	urgencyWeight        = 10
	expectedFactCount    = 5
	engagementSaturation = 5
	positiveSaturation   = 3
)

// keywordWeight pairs an urgency keyword with its fixed weight. Higher weight
// means a harder deadline ("urgente" beats "em breve").
type keywordWeight struct {
	keyword string
	weight  int
}

// keywordTag maps a keyword occurrence to a CRM tag.
type keywordTag struct {
	keyword string
	tag     string
}

var (
	defaultDisqualificationKeywords = []string{
		"spam", "teste", "bot", "desisto",
		"não quero mais", "me tire da lista",
	}

	defaultUrgencyKeywords = []keywordWeight{
		{"urgente", 3},
		{"hoje", 3},
		{"agora", 3},
		{"rápido", 2},
		{"logo", 2},
		{"em breve", 1},
	}

	defaultPositiveSignals = []string{
		"interessado", "quero", "preciso", "gostaria",
		"quando", "como", "quanto custa", "valor",
		"comprar", "contratar", "orçamento",
	}

	defaultHumanRequestKeywords = []string{
		"falar com pessoa", "atendente", "humano", "pessoa real",
	}

	defaultTagKeywords = []keywordTag{
		{"orçamento", "budget_request"},
		{"valor", "pricing_inquiry"},
		{"comprar", "ready_to_buy"},
		{"dúvida", "has_questions"},
		{"comparar", "comparing_options"},
		{"urgente", "urgent"},
		{"problema", "has_issue"},
	}

	defaultCriticalFields = map[string][]string{
		"default":     {"name", "phone"},
		"ecommerce":   {"name", "phone", "product_interest"},
		"services":    {"name", "phone", "service_type", "location"},
		"b2b":         {"name", "phone", "company", "role"},
		"real_estate": {"name", "phone", "property_type", "budget"},
	}
)

// Rules evaluates the deterministic qualification decisions over a
// conversation snapshot. The keyword tables are fixed at construction and
// never mutated afterwards, so a single Rules value is safe for concurrent
// use across turns.
type Rules struct {
	disqualificationKeywords []string
	urgencyKeywords          []keywordWeight
	positiveSignals          []string
	humanRequestKeywords     []string
	tagKeywords              []keywordTag
	criticalFields           map[string][]string
}

// NewRules builds a Rules instance with the default keyword tables.
func NewRules() *Rules {
	return &Rules{
		disqualificationKeywords: defaultDisqualificationKeywords,
		urgencyKeywords:          defaultUrgencyKeywords,
		positiveSignals:          defaultPositiveSignals,
		humanRequestKeywords:     defaultHumanRequestKeywords,
		tagKeywords:              defaultTagKeywords,
		criticalFields:           defaultCriticalFields,
	}
}

// CalculateScore computes the lead score in [0,100]:
// completeness 40, engagement 30, positive signals 20, urgency 10.
// Only user-authored messages count.
func (r *Rules) CalculateScore(conv *Conversation) int {
	score := 0

	completeness := math.Min(float64(conv.FilledFieldCount())/expectedFactCount, 1.0)
	score += int(completeness * completenessWeight)

	userMessages := conv.UserMessages()
	engagement := math.Min(float64(len(userMessages))/engagementSaturation, 1.0)
	score += int(engagement * engagementWeight)

	positiveCount := 0
	for _, msg := range userMessages {
		content := strings.ToLower(msg.Content)
		for _, signal := range r.positiveSignals {
			if strings.Contains(content, signal) {
				positiveCount++
			}
		}
	}
	positive := math.Min(float64(positiveCount)/positiveSaturation, 1.0)
	score += int(positive * positiveWeight)

	score += r.UrgencyScore(conv)

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// UrgencyScore returns 0-10 from the strongest urgency keyword found in user
// messages. Weights are not summed: one "urgente" scores the same as five.
func (r *Rules) UrgencyScore(conv *Conversation) int {
	maxWeight := 0
	for _, msg := range conv.UserMessages() {
		content := strings.ToLower(msg.Content)
		for _, kw := range r.urgencyKeywords {
			if kw.weight > maxWeight && strings.Contains(content, kw.keyword) {
				maxWeight = kw.weight
			}
		}
	}
	scaled := int(math.Round(float64(maxWeight) * 10.0 / 3.0))
	if scaled > 10 {
		scaled = 10
	}
	return scaled
}

// ShouldDisqualify reports whether the lead should be dropped: an opt-out or
// junk keyword in any user message, or the attempt budget exhausted with
// fewer than two facts collected.
func (r *Rules) ShouldDisqualify(conv *Conversation, criteria Criteria) bool {
	for _, msg := range conv.UserMessages() {
		content := strings.ToLower(msg.Content)
		for _, keyword := range r.disqualificationKeywords {
			if strings.Contains(content, keyword) {
				return true
			}
		}
	}
	if conv.Attempts >= criteria.MaxAttempts && conv.FilledFieldCount() < 2 {
		return true
	}
	return false
}

// ShouldQualify reports whether the lead meets the bar: every critical field
// for the business type is present and non-empty, the score clears MinScore,
// and no disqualification signal fired.
func (r *Rules) ShouldQualify(conv *Conversation, criteria Criteria) bool {
	for _, field := range r.CriticalFields(criteria.BusinessType) {
		if conv.CollectedData[field] == "" {
			return false
		}
	}
	if r.CalculateScore(conv) < criteria.MinScore {
		return false
	}
	return !r.ShouldDisqualify(conv, criteria)
}

// ShouldEscalate reports whether a human should take over: the lead asked for
// one, the conversation stalled near the attempt budget, or the lead looks
// high-potential but stuck (score >= 70 without qualifying). An explicit
// human request outranks qualification; the stall rules do not.
func (r *Rules) ShouldEscalate(conv *Conversation, criteria Criteria) bool {
	for _, msg := range conv.UserMessages() {
		content := strings.ToLower(msg.Content)
		for _, keyword := range r.humanRequestKeywords {
			if strings.Contains(content, keyword) {
				return true
			}
		}
	}
	if r.ShouldQualify(conv, criteria) {
		return false
	}
	if conv.Attempts >= criteria.MaxAttempts-1 && conv.FilledFieldCount() < 3 {
		return true
	}
	return r.CalculateScore(conv) >= 70
}

// DeterminePriority maps score and urgency to a CRM routing bucket.
func (r *Rules) DeterminePriority(conv *Conversation) string {
	score := r.CalculateScore(conv)
	urgency := r.UrgencyScore(conv)

	switch {
	case score >= 80 && urgency >= 7:
		return PriorityUrgent
	case score >= 70 || urgency >= 7:
		return PriorityHigh
	case score >= 50:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// SuggestTags derives a deduplicated tag set from the conversation. Order is
// stable so the handoff payload is reproducible.
func (r *Rules) SuggestTags(conv *Conversation) []string {
	tags := []string{"ai_qualified"}
	seen := map[string]bool{"ai_qualified": true}

	if r.UrgencyScore(conv) >= 7 {
		tags = append(tags, "urgent")
		seen["urgent"] = true
	}

	var allText strings.Builder
	for _, msg := range conv.UserMessages() {
		allText.WriteString(strings.ToLower(msg.Content))
		allText.WriteString(" ")
	}
	text := allText.String()

	for _, kt := range r.tagKeywords {
		if !seen[kt.tag] && strings.Contains(text, kt.keyword) {
			tags = append(tags, kt.tag)
			seen[kt.tag] = true
		}
	}
	return tags
}

// GenerateSummary builds the human-readable handoff digest for the CRM.
func (r *Rules) GenerateSummary(conv *Conversation) string {
	var parts []string

	score := r.CalculateScore(conv)
	priority := r.DeterminePriority(conv)
	parts = append(parts, fmt.Sprintf("Score: %d/100 | Prioridade: %s", score, strings.ToUpper(priority)))

	if conv.FilledFieldCount() > 0 {
		parts = append(parts, "\nInformações coletadas:")
		for _, field := range sortedKeys(conv.CollectedData) {
			if value := conv.CollectedData[field]; value != "" {
				parts = append(parts, fmt.Sprintf("• %s: %s", field, value))
			}
		}
	}

	if len(conv.Notes) > 0 {
		parts = append(parts, "\nObservações:")
		notes := conv.Notes
		if len(notes) > 3 {
			notes = notes[len(notes)-3:]
		}
		for _, note := range notes {
			parts = append(parts, fmt.Sprintf("• %s", note))
		}
	}

	userMessages := conv.UserMessages()
	if len(userMessages) > 0 {
		parts = append(parts, fmt.Sprintf("\nMensagens do cliente: %d", len(userMessages)))
		first := userMessages[0].Content
		if len(first) > 100 {
			first = first[:100]
		}
		parts = append(parts, fmt.Sprintf("Primeira mensagem: %q", first))
	}

	return strings.Join(parts, "\n")
}

// CriticalFields returns the minimum fact set for a business type, falling
// back to the default {name, phone} set for unknown types.
func (r *Rules) CriticalFields(businessType string) []string {
	if fields, ok := r.criticalFields[businessType]; ok {
		return fields
	}
	return r.criticalFields["default"]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
