package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/rmoreira/leadqual-ai/pkg/logging"
)

// Service ingests qualification handoff payloads and turns them into stored
// leads. The qualification engine emits the payload and never touches
// storage itself.
type Service struct {
	repo   Repository
	logger *logging.Logger
}

// NewService creates a lead service.
func NewService(repo Repository, logger *logging.Logger) *Service {
	if repo == nil {
		panic("leads: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CreateFromQualification maps a handoff payload into a lead and stores it.
// Payload shape: {phone, name, status, source, priority, tags, custom_fields,
// notes, qualification_score, qualified_at}.
func (s *Service) CreateFromQualification(ctx context.Context, data map[string]any) (*Lead, error) {
	req := &CreateLeadRequest{
		Phone:              asString(data["phone"]),
		Name:               asString(data["name"]),
		Status:             asString(data["status"]),
		Source:             asString(data["source"]),
		Priority:           asString(data["priority"]),
		Tags:               asStringSlice(data["tags"]),
		CustomFields:       asStringMap(data["custom_fields"]),
		Notes:              asString(data["notes"]),
		QualificationScore: asInt(data["qualification_score"]),
		QualifiedAt:        asTime(data["qualified_at"]),
	}

	lead, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("leads: create from qualification: %w", err)
	}

	s.logger.Info("lead created from qualification",
		"lead_id", lead.ID,
		"phone", lead.Phone,
		"status", lead.Status,
		"priority", lead.Priority,
		"score", lead.QualificationScore,
	)
	return lead, nil
}

// GetByPhone exposes lookup for the introspection surface.
func (s *Service) GetByPhone(ctx context.Context, phone string) (*Lead, error) {
	return s.repo.GetByPhone(ctx, phone)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func asStringMap(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, item := range m {
			if str, ok := item.(string); ok {
				out[k] = str
			}
		}
		return out
	}
	return nil
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Now().UTC()
}
