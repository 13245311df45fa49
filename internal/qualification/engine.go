package qualification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nyaruka/phonenumbers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/rmoreira/leadqual-ai/internal/observability/metrics"
	"github.com/rmoreira/leadqual-ai/internal/provider"
	"github.com/rmoreira/leadqual-ai/pkg/logging"
)

const (
	defaultCallTimeout   = 30 * time.Second
	defaultMaxConcurrent = 8
	defaultPhoneRegion   = "BR"

	crmSource = "ai_qualification"
)

// HandoffSink receives CRM handoff payloads for terminated conversations.
// The reaper and the engine both deliver through it so the payload shape is
// identical regardless of what ended the conversation.
type HandoffSink interface {
	Deliver(ctx context.Context, result *Result) error
}

// HandoffSinkFunc adapts a function to the HandoffSink interface.
type HandoffSinkFunc func(ctx context.Context, result *Result) error

func (f HandoffSinkFunc) Deliver(ctx context.Context, result *Result) error {
	return f(ctx, result)
}

// EngineParams configures a qualification engine.
type EngineParams struct {
	Store    *Store
	Rules    *Rules
	Prompts  *PromptBuilder
	Provider provider.AIProvider
	Criteria Criteria
	Logger   *logging.Logger
	Metrics  *metrics.QualificationMetrics

	// Transcripts mirrors messages into Redis when set. Best effort.
	Transcripts *TranscriptStore

	// Sink receives CRM payloads for every terminal transition. Optional.
	Sink HandoffSink

	// MaxConcurrentCalls caps in-flight provider calls across all phones.
	MaxConcurrentCalls int64

	// CallTimeout bounds each individual provider call.
	CallTimeout time.Duration

	// PhoneRegion is the default region for phone validation.
	PhoneRegion string
}

// Engine orchestrates qualification turns: it owns the conversation store,
// the deterministic rules, the prompt builder, and the AI provider, and runs
// the turn state machine under the store's per-phone lock.
type Engine struct {
	store       *Store
	rules       *Rules
	prompts     *PromptBuilder
	provider    provider.AIProvider
	logger      *logging.Logger
	metrics     *metrics.QualificationMetrics
	transcripts *TranscriptStore
	sink        HandoffSink
	sem         *semaphore.Weighted
	callTimeout time.Duration
	phoneRegion string
	tracer      trace.Tracer

	criteriaMu sync.RWMutex
	criteria   Criteria
}

// NewEngine builds an engine. Provider is required; everything else gets a
// sane default when zero.
func NewEngine(params EngineParams) *Engine {
	if params.Provider == nil {
		panic("qualification: provider cannot be nil")
	}
	if params.Store == nil {
		params.Store = NewStore()
	}
	if params.Rules == nil {
		params.Rules = NewRules()
	}
	if params.Prompts == nil {
		params.Prompts = NewPromptBuilder()
	}
	if params.Logger == nil {
		params.Logger = logging.Default()
	}
	if params.Criteria.MaxAttempts == 0 {
		params.Criteria = DefaultCriteria()
	}
	if params.MaxConcurrentCalls <= 0 {
		params.MaxConcurrentCalls = defaultMaxConcurrent
	}
	if params.CallTimeout <= 0 {
		params.CallTimeout = defaultCallTimeout
	}
	if params.PhoneRegion == "" {
		params.PhoneRegion = defaultPhoneRegion
	}

	return &Engine{
		store:       params.Store,
		rules:       params.Rules,
		prompts:     params.Prompts,
		provider:    params.Provider,
		logger:      params.Logger,
		metrics:     params.Metrics,
		transcripts: params.Transcripts,
		sink:        params.Sink,
		sem:         semaphore.NewWeighted(params.MaxConcurrentCalls),
		callTimeout: params.CallTimeout,
		phoneRegion: params.PhoneRegion,
		tracer:      otel.Tracer("leadqual-ai/qualification"),
		criteria:    params.Criteria,
	}
}

// Criteria returns the active qualification criteria.
func (e *Engine) Criteria() Criteria {
	e.criteriaMu.RLock()
	defer e.criteriaMu.RUnlock()
	return e.criteria
}

// UpdateCriteria swaps the active criteria. Turns already past their decision
// point keep the value they evaluated with.
func (e *Engine) UpdateCriteria(criteria Criteria) error {
	if len(criteria.RequiredFields) == 0 {
		return &ValidationError{Field: "required_fields", Reason: "must not be empty"}
	}
	if criteria.MinScore < 0 || criteria.MinScore > 100 {
		return &ValidationError{Field: "min_score", Reason: "must be between 0 and 100"}
	}
	if criteria.MaxAttempts < 1 {
		return &ValidationError{Field: "max_attempts", Reason: "must be at least 1"}
	}
	if criteria.TimeoutMinutes <= 0 {
		return &ValidationError{Field: "timeout_minutes", Reason: "must be positive"}
	}

	e.criteriaMu.Lock()
	e.criteria = criteria
	e.criteriaMu.Unlock()

	e.logger.Info("qualification criteria updated",
		"min_score", criteria.MinScore,
		"max_attempts", criteria.MaxAttempts,
		"business_type", criteria.BusinessType,
	)
	return nil
}

// ProcessMessage runs one qualification turn for the phone: append the
// inbound message, extract facts, rescore, then either terminate the
// conversation or generate the next reply. All mutation happens under the
// per-phone lock, so duplicate webhook deliveries serialize cleanly.
//
// A provider failure on the generation call degrades to FallbackReply; the
// turn still succeeds and the conversation stays in progress.
func (e *Engine) ProcessMessage(ctx context.Context, phone, message string, metadata map[string]string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ProcessMessage")
	defer span.End()

	phone, err := e.validatePhone(phone)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	span.SetAttributes(attribute.String("phone", phone))

	criteria := e.Criteria()

	var (
		result    *Result
		mirrored  []Message
		turnError error
	)
	err = e.store.WithLock(phone, func(conv *Conversation) error {
		if conv.Status.IsTerminal() {
			turnError = ErrConversationEnded
			return nil
		}

		// Step 1: record the inbound message and burn one attempt.
		for k, v := range metadata {
			conv.Metadata[k] = v
		}
		userMsg := conv.AddMessage(RoleUser, message, metadata)
		conv.Attempts++

		// Step 2: structured extraction, merged last-non-null-wins. A null
		// or empty value never erases a collected fact.
		schema := e.extractionSchema(criteria)
		fields := e.extract(ctx, e.prompts.ConversationText(conv.Messages), schema)
		for field, value := range fields {
			if value == nil || *value == "" {
				continue
			}
			if conv.CollectedData[field] != *value {
				conv.SetCollected(field, *value)
			}
		}

		// Step 3: rescore.
		conv.Score = e.rules.CalculateScore(conv)

		// Step 4: decide in fixed priority order.
		name := conv.CollectedData["name"]
		switch {
		case e.rules.ShouldDisqualify(conv, criteria):
			result = e.terminate(conv, StatusDisqualified,
				"Lead desqualificado pelas regras de qualificação",
				e.prompts.DisqualificationMessage(name, ""))
		case e.rules.ShouldEscalate(conv, criteria):
			result = e.terminate(conv, StatusEscalated,
				"Conversa escalada para atendimento humano",
				e.prompts.HandoffMessage(name))
		case e.rules.ShouldQualify(conv, criteria):
			result = e.terminate(conv, StatusQualified,
				"Lead qualificado",
				e.prompts.HandoffMessage(name))
		default:
			reply := e.generateReply(ctx, conv, criteria, message)
			conv.AddMessage(RoleAssistant, reply, nil)
			result = e.resultFrom(conv, reply, false)
		}

		mirrored = append(mirrored, userMsg)
		if n := len(conv.Messages); n > 0 && conv.Messages[n-1].Role == RoleAssistant {
			mirrored = append(mirrored, conv.Messages[n-1])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if turnError != nil {
		return nil, turnError
	}

	e.mirrorTranscript(ctx, phone, mirrored)
	e.metrics.ObserveTurn(string(result.Status))
	e.metrics.SetActiveConversations(len(e.store.Active()))
	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("score", result.Score),
	)

	if result.ShouldSendToCRM {
		e.deliver(ctx, result)
	}
	return result, nil
}

// EndConversation manually terminates a conversation with a reason, emitting
// the same CRM handoff payload as a rules-driven termination.
func (e *Engine) EndConversation(ctx context.Context, phone, reason string) (*Result, error) {
	return e.manualTerminate(ctx, phone, StatusDisqualified, func(conv *Conversation) (string, string) {
		note := "Conversa encerrada manualmente"
		if reason != "" {
			note = fmt.Sprintf("Conversa encerrada manualmente: %s", reason)
		}
		return note, e.prompts.DisqualificationMessage(conv.CollectedData["name"], reason)
	})
}

// Escalate manually hands a conversation to a human.
func (e *Engine) Escalate(ctx context.Context, phone string) (*Result, error) {
	return e.manualTerminate(ctx, phone, StatusEscalated, func(conv *Conversation) (string, string) {
		return "Conversa escalada manualmente para atendimento humano",
			e.prompts.HandoffMessage(conv.CollectedData["name"])
	})
}

func (e *Engine) manualTerminate(ctx context.Context, phone string, status Status, build func(*Conversation) (string, string)) (*Result, error) {
	if _, ok := e.store.Get(phone); !ok {
		return nil, ErrConversationNotFound
	}

	var result *Result
	err := e.store.WithLock(phone, func(conv *Conversation) error {
		if conv.Status.IsTerminal() {
			return ErrConversationEnded
		}
		note, response := build(conv)
		result = e.terminate(conv, status, note, response)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveTurn(string(result.Status))
	e.metrics.SetActiveConversations(len(e.store.Active()))
	e.deliver(ctx, result)
	return result, nil
}

// GetConversation returns a snapshot for introspection.
func (e *Engine) GetConversation(phone string) (*Conversation, error) {
	conv, ok := e.store.Get(phone)
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// ActiveConversations returns snapshots of every non-terminal conversation.
func (e *Engine) ActiveConversations() []*Conversation {
	return e.store.Active()
}

// GetStats aggregates conversation counts per status.
func (e *Engine) GetStats() map[Status]int {
	return e.store.StatusCounts()
}

// RunReaper sweeps idle conversations every interval until ctx is cancelled.
// Each expired conversation is terminalized exactly once and its TIMEOUT
// result goes through the same handoff sink as any other termination.
func (e *Engine) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("inactivity reaper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("inactivity reaper stopped")
			return
		case <-ticker.C:
			e.SweepExpired(ctx, time.Now().UTC())
		}
	}
}

// SweepExpired runs one reaper pass and returns the results it emitted.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) []*Result {
	timeout := e.Criteria().Timeout()
	expired := e.store.SweepExpired(now, timeout)
	if len(expired) == 0 {
		return nil
	}

	results := make([]*Result, 0, len(expired))
	for _, conv := range expired {
		e.logger.Info("conversation timed out",
			"phone", conv.Phone,
			"score", conv.Score,
			"attempts", conv.Attempts,
		)
		e.metrics.ObserveTimeout()
		e.metrics.ObserveTurn(string(StatusTimeout))

		result := e.resultFrom(conv, "", true)
		e.deliver(ctx, result)
		results = append(results, result)
	}
	e.metrics.SetActiveConversations(len(e.store.Active()))
	return results
}

// terminate moves the conversation to a terminal status and builds the
// result. Must run under the per-phone lock.
func (e *Engine) terminate(conv *Conversation, status Status, note, response string) *Result {
	conv.AddMessage(RoleAssistant, response, nil)
	conv.AddNote(note)
	conv.End(status)
	return e.resultFrom(conv, response, true)
}

func (e *Engine) resultFrom(conv *Conversation, response string, sendToCRM bool) *Result {
	collected := make(map[string]string, len(conv.CollectedData))
	for k, v := range conv.CollectedData {
		collected[k] = v
	}

	result := &Result{
		Success:         true,
		Status:          conv.Status,
		Response:        response,
		CollectedData:   collected,
		Score:           conv.Score,
		ShouldSendToCRM: sendToCRM,
		Metadata: map[string]any{
			"phone":    conv.Phone,
			"attempts": conv.Attempts,
		},
	}
	if sendToCRM {
		result.CRMData = e.buildCRMData(conv)
	}
	return result
}

// buildCRMData shapes the handoff payload consumed by lead creation.
func (e *Engine) buildCRMData(conv *Conversation) map[string]any {
	name := conv.CollectedData["name"]
	if name == "" {
		name = conv.Metadata["display_name"]
	}

	qualifiedAt := time.Now().UTC()
	if conv.EndedAt != nil {
		qualifiedAt = *conv.EndedAt
	}

	custom := make(map[string]any, len(conv.CollectedData))
	for k, v := range conv.CollectedData {
		custom[k] = v
	}

	return map[string]any{
		"phone":               conv.Phone,
		"name":                name,
		"status":              string(conv.Status),
		"source":              crmSource,
		"priority":            e.rules.DeterminePriority(conv),
		"tags":                e.rules.SuggestTags(conv),
		"custom_fields":       custom,
		"notes":               e.rules.GenerateSummary(conv),
		"qualification_score": conv.Score,
		"qualified_at":        qualifiedAt.Format(time.RFC3339),
	}
}

// generateReply builds the continuation (or first-contact) prompt and calls
// the provider. Any failure degrades to FallbackReply.
func (e *Engine) generateReply(ctx context.Context, conv *Conversation, criteria Criteria, message string) string {
	var instruction string
	if conv.Attempts <= 1 {
		instruction = e.prompts.FirstContact(message)
	} else {
		history := conv.Messages[:len(conv.Messages)-1]
		instruction = e.prompts.ContinueConversation(history, conv.CollectedData, e.missingFields(conv, criteria), message)
	}

	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: e.prompts.SystemPrompt(criteria)},
		{Role: provider.RoleUser, Content: instruction},
	}

	text, err := e.withProviderCall(ctx, "generate", func(callCtx context.Context) (string, error) {
		return e.provider.GenerateResponse(callCtx, messages, provider.DefaultGenerateOptions())
	})
	if err != nil {
		e.logger.Warn("generation degraded to fallback reply",
			"phone", conv.Phone,
			"error", err.Error(),
		)
		return FallbackReply
	}
	return text
}

// extract calls structured extraction. Failures degrade to an all-null map,
// so a bad extraction is just "no new facts".
func (e *Engine) extract(ctx context.Context, conversationText string, schema map[string]string) map[string]*string {
	fields, err := e.withProviderCallMap(ctx, "extract", func(callCtx context.Context) (map[string]*string, error) {
		return e.provider.ExtractStructuredData(callCtx, conversationText, schema)
	})
	if err != nil {
		e.logger.Warn("extraction failed, treating as no new facts", "error", err.Error())
		null := make(map[string]*string, len(schema))
		for field := range schema {
			null[field] = nil
		}
		return null
	}
	return fields
}

func (e *Engine) withProviderCall(ctx context.Context, op string, fn func(context.Context) (string, error)) (string, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("qualification: provider slot unavailable: %w", err)
	}
	defer e.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	start := time.Now()
	text, err := fn(callCtx)
	e.metrics.ObserveProviderCall(op, time.Since(start).Seconds())
	if err != nil {
		e.metrics.ObserveProviderFailure(op)
	}
	return text, err
}

func (e *Engine) withProviderCallMap(ctx context.Context, op string, fn func(context.Context) (map[string]*string, error)) (map[string]*string, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("qualification: provider slot unavailable: %w", err)
	}
	defer e.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	start := time.Now()
	fields, err := fn(callCtx)
	e.metrics.ObserveProviderCall(op, time.Since(start).Seconds())
	if err != nil {
		e.metrics.ObserveProviderFailure(op)
	}
	return fields, err
}

// extractionSchema derives the field schema from the criteria: required
// fields plus the critical fields for the business type.
func (e *Engine) extractionSchema(criteria Criteria) map[string]string {
	schema := make(map[string]string)
	for _, field := range criteria.RequiredFields {
		schema[field] = "string"
	}
	for _, field := range e.rules.CriticalFields(criteria.BusinessType) {
		schema[field] = "string"
	}
	return schema
}

func (e *Engine) missingFields(conv *Conversation, criteria Criteria) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, field := range criteria.RequiredFields {
		seen[field] = true
		if conv.CollectedData[field] == "" {
			missing = append(missing, field)
		}
	}
	for _, field := range e.rules.CriticalFields(criteria.BusinessType) {
		if !seen[field] && conv.CollectedData[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// validatePhone normalizes the phone through libphonenumber. Digit strings
// without a leading plus are retried as international numbers, since webhook
// payloads commonly strip the plus from E.164.
func (e *Engine) validatePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", &ValidationError{Field: "phone", Reason: "must not be empty"}
	}

	if _, err := phonenumbers.Parse(phone, e.phoneRegion); err == nil {
		return phone, nil
	}
	if !strings.HasPrefix(phone, "+") {
		if _, err := phonenumbers.Parse("+"+phone, ""); err == nil {
			return phone, nil
		}
	}
	return "", &ValidationError{Field: "phone", Reason: "not a parseable phone number"}
}

func (e *Engine) mirrorTranscript(ctx context.Context, phone string, msgs []Message) {
	if e.transcripts == nil {
		return
	}
	for _, msg := range msgs {
		if err := e.transcripts.Append(ctx, phone, msg); err != nil {
			e.logger.Warn("transcript mirror append failed",
				"phone", phone,
				"error", err.Error(),
			)
			return
		}
	}
}

func (e *Engine) deliver(ctx context.Context, result *Result) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Deliver(ctx, result); err != nil {
		e.logger.Error("CRM handoff delivery failed",
			"status", string(result.Status),
			"error", err.Error(),
		)
	}
}
