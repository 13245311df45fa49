package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is the slice of pgxpool.Pool the repository needs. Tests swap
// in pgxmock.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db pgxQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgxQuerier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	customFields, err := json.Marshal(req.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("leads: encode custom fields: %w", err)
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, phone, name, status, source, priority, tags, custom_fields, notes, qualification_score, qualified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.Phone,
		req.Name,
		req.Status,
		req.Source,
		req.Priority,
		req.Tags,
		customFields,
		req.Notes,
		req.QualificationScore,
		req.QualifiedAt,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return &Lead{
		ID:                 id.String(),
		Phone:              req.Phone,
		Name:               req.Name,
		Status:             req.Status,
		Source:             req.Source,
		Priority:           req.Priority,
		Tags:               req.Tags,
		CustomFields:       req.CustomFields,
		Notes:              req.Notes,
		QualificationScore: req.QualificationScore,
		QualifiedAt:        req.QualifiedAt,
		CreatedAt:          createdAt,
	}, nil
}

// GetByID fetches a lead by primary key.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	query := `
		SELECT id, phone, name, status, source, priority, tags, custom_fields, notes, qualification_score, qualified_at, created_at
		FROM leads
		WHERE id = $1
	`
	return r.scanLead(r.db.QueryRow(ctx, query, id))
}

// GetByPhone fetches the most recently created lead for a phone.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*Lead, error) {
	query := `
		SELECT id, phone, name, status, source, priority, tags, custom_fields, notes, qualification_score, qualified_at, created_at
		FROM leads
		WHERE phone = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanLead(r.db.QueryRow(ctx, query, phone))
}

func (r *PostgresRepository) scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead         Lead
		customFields []byte
	)
	if err := row.Scan(
		&lead.ID,
		&lead.Phone,
		&lead.Name,
		&lead.Status,
		&lead.Source,
		&lead.Priority,
		&lead.Tags,
		&customFields,
		&lead.Notes,
		&lead.QualificationScore,
		&lead.QualifiedAt,
		&lead.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &lead.CustomFields); err != nil {
			return nil, fmt.Errorf("leads: decode custom fields: %w", err)
		}
	}
	return &lead, nil
}
