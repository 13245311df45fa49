package qualification

import (
	"fmt"
	"time"
)

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Status tracks where a conversation sits in the qualification state machine.
// in_progress is the only non-terminal state; every other status is final and
// a conversation never leaves it.
type Status string

const (
	StatusInProgress   Status = "in_progress"
	StatusQualified    Status = "qualified"
	StatusDisqualified Status = "disqualified"
	StatusEscalated    Status = "escalated"
	StatusTimeout      Status = "timeout"
)

// IsTerminal reports whether the status ends the conversation.
func (s Status) IsTerminal() bool {
	return s != StatusInProgress
}

// Priority buckets used for CRM handoff routing.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Message is a single utterance in a conversation. Immutable once appended.
type Message struct {
	Role      MessageRole       `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Conversation holds the full message history and derived state for one lead,
// keyed by phone. It is owned by the Store and must only be mutated while
// holding the per-phone lock.
type Conversation struct {
	Phone          string            `json:"phone"`
	Messages       []Message         `json:"messages"`
	CollectedData  map[string]string `json:"collected_data"`
	Status         Status            `json:"status"`
	Score          int               `json:"score"`
	Attempts       int               `json:"attempts"`
	Notes          []string          `json:"notes"`
	StartedAt      time.Time         `json:"started_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// NewConversation starts an in-progress conversation for the given phone.
func NewConversation(phone string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		Phone:          phone,
		CollectedData:  make(map[string]string),
		Status:         StatusInProgress,
		StartedAt:      now,
		LastActivityAt: now,
		Metadata:       make(map[string]string),
	}
}

// AddMessage appends a message and bumps the activity timestamp.
func (c *Conversation) AddMessage(role MessageRole, content string, metadata map[string]string) Message {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	c.Messages = append(c.Messages, msg)
	c.LastActivityAt = msg.Timestamp
	return msg
}

// AddNote records a timestamped audit-trail note.
func (c *Conversation) AddNote(note string) {
	c.Notes = append(c.Notes, fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), note))
}

// SetCollected stores a collected fact and notes the collection.
func (c *Conversation) SetCollected(field, value string) {
	c.CollectedData[field] = value
	c.AddNote(fmt.Sprintf("Campo '%s' coletado: %s", field, value))
}

// FilledFieldCount counts non-empty collected facts.
func (c *Conversation) FilledFieldCount() int {
	count := 0
	for _, v := range c.CollectedData {
		if v != "" {
			count++
		}
	}
	return count
}

// UserMessages returns the user-authored messages in order.
func (c *Conversation) UserMessages() []Message {
	msgs := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// End transitions to a terminal status. EndedAt is set exactly once; a second
// call against an already-terminal conversation is a no-op.
func (c *Conversation) End(status Status) {
	if c.Status.IsTerminal() {
		return
	}
	c.Status = status
	now := time.Now().UTC()
	c.EndedAt = &now
}

// Snapshot returns a deep copy safe to hand to callers outside the lock.
func (c *Conversation) Snapshot() *Conversation {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	cp.Notes = append([]string(nil), c.Notes...)
	cp.CollectedData = make(map[string]string, len(c.CollectedData))
	for k, v := range c.CollectedData {
		cp.CollectedData[k] = v
	}
	cp.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	if c.EndedAt != nil {
		ended := *c.EndedAt
		cp.EndedAt = &ended
	}
	return &cp
}

// Criteria configures the qualification thresholds. Instances are treated as
// immutable: the engine swaps the whole value on administrative updates and
// never mutates one mid-evaluation.
type Criteria struct {
	RequiredFields []string `json:"required_fields"`
	MinScore       int      `json:"min_score"`
	MaxAttempts    int      `json:"max_attempts"`
	TimeoutMinutes int      `json:"timeout_minutes"`
	BusinessType   string   `json:"business_type"`
}

// DefaultCriteria mirrors the thresholds used when none are configured.
func DefaultCriteria() Criteria {
	return Criteria{
		RequiredFields: []string{"name", "phone", "interest"},
		MinScore:       50,
		MaxAttempts:    5,
		TimeoutMinutes: 30,
		BusinessType:   "default",
	}
}

// Timeout returns the configured inactivity window as a duration.
func (c Criteria) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// Result is the outcome of one processed turn.
type Result struct {
	Success         bool              `json:"success"`
	Status          Status            `json:"status"`
	Response        string            `json:"response"`
	CollectedData   map[string]string `json:"collected_data"`
	Score           int               `json:"score"`
	ShouldSendToCRM bool              `json:"should_send_to_crm"`
	CRMData         map[string]any    `json:"crm_data,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}
