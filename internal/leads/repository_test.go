package leads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLeadRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateLeadRequest
		wantErr error
	}{
		{"valid", CreateLeadRequest{Phone: "5511999990000", QualificationScore: 60}, nil},
		{"missing phone", CreateLeadRequest{QualificationScore: 60}, ErrMissingPhone},
		{"blank phone", CreateLeadRequest{Phone: "   "}, ErrMissingPhone},
		{"score too low", CreateLeadRequest{Phone: "55", QualificationScore: -1}, ErrInvalidScore},
		{"score too high", CreateLeadRequest{Phone: "55", QualificationScore: 101}, ErrInvalidScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInMemoryRepositoryCreateAndGet(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	lead, err := repo.Create(ctx, &CreateLeadRequest{
		Phone:              "5511999990000",
		Name:               "Ana",
		Status:             "qualified",
		Source:             "ai_qualification",
		Priority:           "medium",
		Tags:               []string{"ai_qualified", "budget_request"},
		CustomFields:       map[string]string{"interest": "produto X"},
		QualificationScore: 60,
		QualifiedAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.False(t, lead.CreatedAt.IsZero())

	byID, err := repo.GetByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", byID.Name)

	byPhone, err := repo.GetByPhone(ctx, "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, byPhone.ID)
}

func TestInMemoryRepositoryNotFound(t *testing.T) {
	repo := NewInMemoryRepository()

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLeadNotFound)

	_, err = repo.GetByPhone(context.Background(), "5500000000000")
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestInMemoryRepositoryRejectsInvalid(t *testing.T) {
	repo := NewInMemoryRepository()

	_, err := repo.Create(context.Background(), &CreateLeadRequest{})
	assert.ErrorIs(t, err, ErrMissingPhone)
}
