package qualification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTranscriptTTL = 24 * time.Hour

// TranscriptStore mirrors conversation transcripts into Redis for dashboard
// consumption. It is ephemeral and best-effort: the engine never fails a
// turn on a mirror error, and the in-memory Store remains the only owner of
// conversation state.
type TranscriptStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewTranscriptStore creates a transcript mirror with the given TTL.
func NewTranscriptStore(client *redis.Client, ttl time.Duration) *TranscriptStore {
	if client == nil {
		panic("qualification: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultTranscriptTTL
	}
	return &TranscriptStore{redis: client, ttl: ttl}
}

// Append pushes one message onto the phone's transcript list and refreshes
// its TTL.
func (s *TranscriptStore) Append(ctx context.Context, phone string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("qualification: failed to marshal transcript message: %w", err)
	}
	key := transcriptKey(phone)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("qualification: failed to append transcript: %w", err)
	}
	return nil
}

// Load returns up to limit trailing messages for the phone. A missing key
// yields an empty slice.
func (s *TranscriptStore) Load(ctx context.Context, phone string, limit int) ([]Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.redis.LRange(ctx, transcriptKey(phone), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("qualification: failed to load transcript: %w", err)
	}

	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("qualification: failed to decode transcript message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func transcriptKey(phone string) string {
	return fmt.Sprintf("transcript:%s", phone)
}
