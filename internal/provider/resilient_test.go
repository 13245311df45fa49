package provider

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmoreira/leadqual-ai/pkg/logging"
)

// scriptedProvider fails a configurable number of generation calls before
// succeeding.
type scriptedProvider struct {
	mu sync.Mutex

	name          string
	failuresLeft  int
	reply         string
	extractErr    error
	extractFields map[string]*string
	healthy       bool

	generateCalls int
	extractCalls  int
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) GenerateResponse(context.Context, []Message, GenerateOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateCalls++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return "", newError(s.name, "generate", errors.New("transient failure"))
	}
	return s.reply, nil
}

func (s *scriptedProvider) ExtractStructuredData(_ context.Context, _ string, schema map[string]string) (map[string]*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractCalls++
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	if s.extractFields != nil {
		return s.extractFields, nil
	}
	return nullExtraction(schema), nil
}

func (s *scriptedProvider) HealthCheck(context.Context) bool { return s.healthy }

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

func TestResilientPanicsWithoutPrimary(t *testing.T) {
	assert.Panics(t, func() {
		NewResilient(nil, nil, time.Millisecond, quietLogger())
	})
}

func TestResilientSuccessOnFirstTry(t *testing.T) {
	primary := &scriptedProvider{name: "primary", reply: "olá"}
	r := NewResilient(primary, nil, time.Millisecond, quietLogger())

	text, err := r.GenerateResponse(context.Background(), []Message{{Role: RoleUser, Content: "oi"}}, DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Equal(t, "olá", text)
	assert.Equal(t, 1, primary.generateCalls)
}

func TestResilientRetriesOnceThenSucceeds(t *testing.T) {
	primary := &scriptedProvider{name: "primary", failuresLeft: 1, reply: "olá"}
	r := NewResilient(primary, nil, time.Millisecond, quietLogger())

	text, err := r.GenerateResponse(context.Background(), []Message{{Role: RoleUser, Content: "oi"}}, DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Equal(t, "olá", text)
	assert.Equal(t, 2, primary.generateCalls)
}

func TestResilientFallsBackAfterRetryExhausted(t *testing.T) {
	primary := &scriptedProvider{name: "primary", failuresLeft: 2}
	fallback := &scriptedProvider{name: "fallback", reply: "resposta do fallback"}
	r := NewResilient(primary, fallback, time.Millisecond, quietLogger())

	text, err := r.GenerateResponse(context.Background(), []Message{{Role: RoleUser, Content: "oi"}}, DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Equal(t, "resposta do fallback", text)
	assert.Equal(t, 2, primary.generateCalls)
	assert.Equal(t, 1, fallback.generateCalls)
}

func TestResilientSurfacesErrorWhenAllFail(t *testing.T) {
	primary := &scriptedProvider{name: "primary", failuresLeft: 10}
	fallback := &scriptedProvider{name: "fallback", failuresLeft: 10}
	r := NewResilient(primary, fallback, time.Millisecond, quietLogger())

	_, err := r.GenerateResponse(context.Background(), []Message{{Role: RoleUser, Content: "oi"}}, DefaultGenerateOptions())
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "fallback", perr.Provider)
}

func TestResilientHonorsContextDuringRetryDelay(t *testing.T) {
	primary := &scriptedProvider{name: "primary", failuresLeft: 10}
	r := NewResilient(primary, nil, time.Minute, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.GenerateResponse(ctx, []Message{{Role: RoleUser, Content: "oi"}}, DefaultGenerateOptions())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, primary.generateCalls)
}

func TestResilientExtractionFallsBack(t *testing.T) {
	ana := "Ana"
	primary := &scriptedProvider{name: "primary", extractErr: errors.New("down")}
	fallback := &scriptedProvider{name: "fallback", extractFields: map[string]*string{"name": &ana}}
	r := NewResilient(primary, fallback, time.Millisecond, quietLogger())

	fields, err := r.ExtractStructuredData(context.Background(), "texto", map[string]string{"name": "string"})
	require.NoError(t, err)
	require.NotNil(t, fields["name"])
	assert.Equal(t, "Ana", *fields["name"])
}

func TestResilientExtractionDegradesToAllNull(t *testing.T) {
	primary := &scriptedProvider{name: "primary", extractErr: errors.New("down")}
	fallback := &scriptedProvider{name: "fallback", extractErr: errors.New("also down")}
	r := NewResilient(primary, fallback, time.Millisecond, quietLogger())

	schema := map[string]string{"name": "string", "phone": "string"}
	fields, err := r.ExtractStructuredData(context.Background(), "texto", schema)
	require.NoError(t, err)
	assert.Len(t, fields, len(schema))
	for field, value := range fields {
		assert.Nil(t, value, "field %s", field)
	}
}

func TestResilientHealthCheck(t *testing.T) {
	tests := []struct {
		name            string
		primaryHealthy  bool
		fallbackHealthy bool
		want            bool
	}{
		{"primary healthy", true, false, true},
		{"only fallback healthy", false, true, true},
		{"both down", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &scriptedProvider{name: "primary", healthy: tt.primaryHealthy}
			fallback := &scriptedProvider{name: "fallback", healthy: tt.fallbackHealthy}
			r := NewResilient(primary, fallback, time.Millisecond, quietLogger())
			assert.Equal(t, tt.want, r.HealthCheck(context.Background()))
		})
	}
}
