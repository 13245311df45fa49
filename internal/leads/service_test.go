package leads

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmoreira/leadqual-ai/pkg/logging"
)

func newTestService() (*Service, *InMemoryRepository) {
	repo := NewInMemoryRepository()
	return NewService(repo, logging.NewWithWriter("error", io.Discard)), repo
}

func TestServicePanicsOnNilRepository(t *testing.T) {
	assert.Panics(t, func() {
		NewService(nil, nil)
	})
}

func TestCreateFromQualification(t *testing.T) {
	svc, _ := newTestService()

	lead, err := svc.CreateFromQualification(context.Background(), map[string]any{
		"phone":               "5511999990000",
		"name":                "Ana",
		"status":              "qualified",
		"source":              "ai_qualification",
		"priority":            "medium",
		"tags":                []string{"ai_qualified", "budget_request"},
		"custom_fields":       map[string]any{"interest": "produto X", "name": "Ana"},
		"notes":               "Score: 60/100 | Prioridade: MEDIUM",
		"qualification_score": 60,
		"qualified_at":        "2026-08-24T12:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "5511999990000", lead.Phone)
	assert.Equal(t, "Ana", lead.Name)
	assert.Equal(t, "qualified", lead.Status)
	assert.Equal(t, "ai_qualification", lead.Source)
	assert.Equal(t, []string{"ai_qualified", "budget_request"}, lead.Tags)
	assert.Equal(t, "produto X", lead.CustomFields["interest"])
	assert.Equal(t, 60, lead.QualificationScore)
	assert.Equal(t, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), lead.QualifiedAt)

	stored, err := svc.GetByPhone(context.Background(), "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, stored.ID)
}

func TestCreateFromQualificationRejectsMissingPhone(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateFromQualification(context.Background(), map[string]any{
		"name": "Ana",
	})
	assert.ErrorIs(t, err, ErrMissingPhone)
}

func TestCreateFromQualificationTolerantParsing(t *testing.T) {
	svc, _ := newTestService()

	// Values arriving through JSON lose their Go types: numbers become
	// float64, slices become []any.
	lead, err := svc.CreateFromQualification(context.Background(), map[string]any{
		"phone":               "5511999990000",
		"tags":                []any{"ai_qualified", 42},
		"qualification_score": float64(55),
		"qualified_at":        time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ai_qualified"}, lead.Tags)
	assert.Equal(t, 55, lead.QualificationScore)
	assert.Equal(t, time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC), lead.QualifiedAt)
}
