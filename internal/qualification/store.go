package qualification

import (
	"sync"
	"time"
)

// Store keeps the active conversations for the lifetime of the process,
// keyed by phone. Access to a single conversation is serialized through a
// per-phone mutex so duplicate webhook deliveries cannot race the merge or
// the termination decision; distinct phones proceed in parallel.
//
// Nothing is persisted: a restart loses in-flight conversations.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*storeEntry
}

type storeEntry struct {
	mu   sync.Mutex
	conv *Conversation
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*storeEntry),
	}
}

// GetOrCreate returns a snapshot of the conversation for phone, creating a
// fresh in-progress one on first reference. The second return reports
// whether the conversation was created by this call.
func (s *Store) GetOrCreate(phone string) (*Conversation, bool) {
	entry, created := s.entryFor(phone)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.conv.Snapshot(), created
}

// WithLock runs fn with exclusive access to the conversation for phone.
// The conversation is created if it does not exist yet. fn receives the
// live conversation and must not retain it past the call.
func (s *Store) WithLock(phone string, fn func(*Conversation) error) error {
	entry, _ := s.entryFor(phone)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.conv)
}

// Get returns a snapshot of the conversation for phone, if present.
func (s *Store) Get(phone string) (*Conversation, bool) {
	s.mu.RLock()
	entry, ok := s.conversations[phone]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.conv.Snapshot(), true
}

// Active returns snapshots of every non-terminal conversation.
func (s *Store) Active() []*Conversation {
	var active []*Conversation
	for _, entry := range s.entries() {
		entry.mu.Lock()
		if !entry.conv.Status.IsTerminal() {
			active = append(active, entry.conv.Snapshot())
		}
		entry.mu.Unlock()
	}
	return active
}

// StatusCounts aggregates conversation counts per status.
func (s *Store) StatusCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, entry := range s.entries() {
		entry.mu.Lock()
		counts[entry.conv.Status]++
		entry.mu.Unlock()
	}
	return counts
}

// Len returns the total number of tracked conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// SweepExpired transitions every in-progress conversation idle past the
// timeout to the timeout status, each under its own lock, and returns
// snapshots of the conversations terminated by this sweep. A conversation
// already terminal is skipped, so a second sweep is a no-op for it.
func (s *Store) SweepExpired(now time.Time, timeout time.Duration) []*Conversation {
	var expired []*Conversation
	for _, entry := range s.entries() {
		entry.mu.Lock()
		conv := entry.conv
		if !conv.Status.IsTerminal() && now.Sub(conv.LastActivityAt) > timeout {
			conv.AddNote("Conversa encerrada por inatividade")
			conv.End(StatusTimeout)
			expired = append(expired, conv.Snapshot())
		}
		entry.mu.Unlock()
	}
	return expired
}

func (s *Store) entryFor(phone string) (*storeEntry, bool) {
	s.mu.RLock()
	entry, ok := s.conversations[phone]
	s.mu.RUnlock()
	if ok {
		return entry, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.conversations[phone]; ok {
		return entry, false
	}
	entry = &storeEntry{conv: NewConversation(phone)}
	s.conversations[phone] = entry
	return entry, true
}

func (s *Store) entries() []*storeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*storeEntry, 0, len(s.conversations))
	for _, entry := range s.conversations {
		entries = append(entries, entry)
	}
	return entries
}
