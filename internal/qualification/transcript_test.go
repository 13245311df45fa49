package qualification

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmoreira/leadqual-ai/pkg/logging"
)

func newTestTranscriptStore(t *testing.T, ttl time.Duration) (*TranscriptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTranscriptStore(client, ttl), mr
}

func TestTranscriptAppendAndLoad(t *testing.T) {
	store, _ := newTestTranscriptStore(t, time.Hour)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Append(ctx, "5511999990000", Message{Role: RoleUser, Content: "oi", Timestamp: now}))
	require.NoError(t, store.Append(ctx, "5511999990000", Message{Role: RoleAssistant, Content: "Olá!", Timestamp: now}))

	msgs, err := store.Load(ctx, "5511999990000", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "oi", msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[0].Timestamp.Equal(now))
}

func TestTranscriptLoadLimit(t *testing.T) {
	store, _ := newTestTranscriptStore(t, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "5511999990000", Message{Role: RoleUser, Content: string(rune('a' + i))}))
	}

	msgs, err := store.Load(ctx, "5511999990000", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "d", msgs[0].Content)
	assert.Equal(t, "e", msgs[1].Content)
}

func TestTranscriptLoadMissingPhone(t *testing.T) {
	store, _ := newTestTranscriptStore(t, time.Hour)

	msgs, err := store.Load(context.Background(), "5500000000000", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestTranscriptExpires(t *testing.T) {
	store, mr := newTestTranscriptStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "5511999990000", Message{Role: RoleUser, Content: "oi"}))
	assert.True(t, mr.Exists("transcript:5511999990000"))

	mr.FastForward(2 * time.Minute)

	msgs, err := store.Load(ctx, "5511999990000", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestEngineMirrorsTranscript(t *testing.T) {
	transcripts, _ := newTestTranscriptStore(t, time.Hour)
	engine := NewEngine(EngineParams{
		Provider:    &fakeProvider{reply: "Olá! Como posso ajudar?"},
		Criteria:    DefaultCriteria(),
		Logger:      logging.NewWithWriter("error", testWriter{t}),
		Transcripts: transcripts,
	})

	_, err := engine.ProcessMessage(context.Background(), "5511999990000", "oi", nil)
	require.NoError(t, err)

	msgs, err := transcripts.Load(context.Background(), "5511999990000", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "oi", msgs[0].Content)
	assert.Equal(t, "Olá! Como posso ajudar?", msgs[1].Content)
}
