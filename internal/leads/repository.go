package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	GetByPhone(ctx context.Context, phone string) (*Lead, error)
}

// InMemoryRepository implements Repository with process-local storage. Used
// when no database is configured and by tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	leads   map[string]*Lead
	byPhone map[string]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:   make(map[string]*Lead),
		byPhone: make(map[string]string),
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := &Lead{
		ID:                 uuid.New().String(),
		Phone:              req.Phone,
		Name:               req.Name,
		Status:             req.Status,
		Source:             req.Source,
		Priority:           req.Priority,
		Tags:               append([]string(nil), req.Tags...),
		CustomFields:       copyFields(req.CustomFields),
		Notes:              req.Notes,
		QualificationScore: req.QualificationScore,
		QualifiedAt:        req.QualifiedAt,
		CreatedAt:          time.Now().UTC(),
	}

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.byPhone[lead.Phone] = lead.ID
	r.mu.Unlock()

	return lead, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead, nil
}

// GetByPhone retrieves the most recently created lead for a phone.
func (r *InMemoryRepository) GetByPhone(ctx context.Context, phone string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPhone[phone]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return r.leads[id], nil
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
