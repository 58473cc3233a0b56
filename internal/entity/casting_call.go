package entity

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/casting-aggregator/constants"
)

// RawContentItem is one unit of text discovered by a poller.
type RawContentItem struct {
	SourceID     string    `json:"source_id"`
	SourceURL    string    `json:"source_url"`
	Text         string    `json:"text"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// ExtractionCandidate is the structured result of extraction, before persistence.
type ExtractionCandidate struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Company      string  `json:"company"`
	Location     string  `json:"location"`
	Compensation *string `json:"compensation,omitempty"`
	Requirements *string `json:"requirements,omitempty"`
	Deadline     *string `json:"deadline,omitempty"` // YYYY-MM-DD
	ContactInfo  *string `json:"contact_info,omitempty"`
	ProjectType  *string `json:"project_type,omitempty"`

	SourceID  string `json:"source_id"`
	SourceURL string `json:"source_url"`
}

// MissingRequired lists the required fields that are blank.
func (c ExtractionCandidate) MissingRequired() []string {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"title", c.Title},
		{"description", c.Description},
		{"company", c.Company},
		{"location", c.Location},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// CastingCallRecord is the durable, deduplicated casting call.
type CastingCallRecord struct {
	ID           string                 `json:"id"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	Company      string                 `json:"company"`
	Location     string                 `json:"location"`
	Compensation *string                `json:"compensation,omitempty"`
	Requirements *string                `json:"requirements,omitempty"`
	Deadline     *string                `json:"deadline,omitempty"`
	ContactInfo  *string                `json:"contact_info,omitempty"`
	ProjectType  *string                `json:"project_type,omitempty"`
	SourceID     string                 `json:"source_id"`
	SourceURL    string                 `json:"source_url"`
	ContentHash  string                 `json:"content_hash"`
	Status       constants.RecordStatus `json:"status"`
	IsAggregated bool                   `json:"is_aggregated"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// RecordFromCandidate copies candidate fields into a new pending record.
func RecordFromCandidate(c ExtractionCandidate, id, hash string, now time.Time) CastingCallRecord {
	return CastingCallRecord{
		ID:           id,
		Title:        c.Title,
		Description:  c.Description,
		Company:      c.Company,
		Location:     c.Location,
		Compensation: c.Compensation,
		Requirements: c.Requirements,
		Deadline:     c.Deadline,
		ContactInfo:  c.ContactInfo,
		ProjectType:  c.ProjectType,
		SourceID:     c.SourceID,
		SourceURL:    c.SourceURL,
		ContentHash:  hash,
		Status:       constants.RecordStatusPendingReview,
		IsAggregated: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
