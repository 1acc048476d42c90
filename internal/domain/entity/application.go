package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// Kind distinguishes the two travel request forms that share one workflow
type Kind string

const (
	KindPO Kind = "PO"
	KindPM Kind = "PM"
)

// IsValid returns true for a known application kind
func (k Kind) IsValid() bool {
	return k == KindPO || k == KindPM
}

// ParseKind converts a route or form value ("po", "PM") into a Kind
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(raw)))
	if !k.IsValid() {
		return "", fmt.Errorf("unknown application kind: %q", raw)
	}
	return k, nil
}

// Application represents a travel request under review
type Application struct {
	ID              int64          `json:"id"`
	Kind            Kind           `json:"kind"`
	Title           string         `json:"title"`
	ApplicantID     string         `json:"applicant_id"`
	Status          workflow.State `json:"status"`
	StatusRemark    string         `json:"status_remark"`
	StatusUpdatedBy string         `json:"status_updated_by"`
	StatusUpdatedAt time.Time      `json:"status_updated_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
