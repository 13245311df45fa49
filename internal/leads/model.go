package leads

import (
	"strings"
	"time"
)

// Lead is a CRM record created from a finished qualification conversation.
type Lead struct {
	ID                 string            `json:"id"`
	Phone              string            `json:"phone"`
	Name               string            `json:"name"`
	Status             string            `json:"status"`
	Source             string            `json:"source"`
	Priority           string            `json:"priority"`
	Tags               []string          `json:"tags"`
	CustomFields       map[string]string `json:"custom_fields"`
	Notes              string            `json:"notes"`
	QualificationScore int               `json:"qualification_score"`
	QualifiedAt        time.Time         `json:"qualified_at"`
	CreatedAt          time.Time         `json:"created_at"`
}

// CreateLeadRequest is the payload accepted by lead creation.
type CreateLeadRequest struct {
	Phone              string            `json:"phone"`
	Name               string            `json:"name"`
	Status             string            `json:"status"`
	Source             string            `json:"source"`
	Priority           string            `json:"priority"`
	Tags               []string          `json:"tags"`
	CustomFields       map[string]string `json:"custom_fields"`
	Notes              string            `json:"notes"`
	QualificationScore int               `json:"qualification_score"`
	QualifiedAt        time.Time         `json:"qualified_at"`
}

// Validate checks the create lead request.
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Phone) == "" {
		return ErrMissingPhone
	}
	if r.QualificationScore < 0 || r.QualificationScore > 100 {
		return ErrInvalidScore
	}
	return nil
}
