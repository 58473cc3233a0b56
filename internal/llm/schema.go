package llm

import "github.com/joseph-ayodele/casting-aggregator/internal/entity"

// ExtractionResult is the JSON document the provider must return.
type ExtractionResult struct {
	IsCastingCall   bool     `json:"is_casting_call"`
	RejectionReason string   `json:"rejection_reason,omitempty"`
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description,omitempty"`
	Company         string   `json:"company,omitempty"`
	Location        string   `json:"location,omitempty"`
	Compensation    *string  `json:"compensation,omitempty"`
	Requirements    *string  `json:"requirements,omitempty"`
	Deadline        *string  `json:"deadline,omitempty"`
	ContactInfo     *string  `json:"contact_info,omitempty"`
	ProjectType     *string  `json:"project_type,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

// Candidate converts an accepted result into an extraction candidate without provenance.
func (r ExtractionResult) Candidate() entity.ExtractionCandidate {
	return entity.ExtractionCandidate{
		Title:        r.Title,
		Description:  r.Description,
		Company:      r.Company,
		Location:     r.Location,
		Compensation: r.Compensation,
		Requirements: r.Requirements,
		Deadline:     r.Deadline,
		ContactInfo:  r.ContactInfo,
		ProjectType:  r.ProjectType,
	}
}

// Length caps for accepted results, in runes.
const (
	MaxTitleLength = 500
	MaxNameLength  = 300
)

// CastingCallJSONSchema returns the JSON Schema for ExtractionResult.
// Required-field presence for accepted results is checked after validation
// so that an incomplete answer is a rejection, not invalid output.
func CastingCallJSONSchema() map[string]any {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	capped := func(desc string, max int) map[string]any {
		return map[string]any{"type": "string", "maxLength": max, "description": desc}
	}
	optStr := func(desc string) map[string]any {
		return map[string]any{"type": []any{"string", "null"}, "description": desc}
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"title":                "CastingCallExtraction",
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"is_casting_call"},
		"properties": map[string]any{
			"is_casting_call":  map[string]any{"type": "boolean", "description": "false unless the text recruits performers for a specific upcoming production"},
			"rejection_reason": str("why the text is not a casting call"),
			"title":            capped("short headline of the role or production", MaxTitleLength),
			"description":      str("what is being cast and the project context"),
			"company":          capped("production company, agency or poster", MaxNameLength),
			"location":         capped("city or venue of the shoot or audition", MaxNameLength),
			"compensation":     optStr("pay as written, e.g. '500 SAR per day'"),
			"requirements":     optStr("age, gender, look, skills, languages"),
			"deadline": map[string]any{
				"type":        []any{"string", "null"},
				"pattern":     `^\d{4}-\d{2}-\d{2}$`,
				"format":      "date",
				"description": "application deadline, YYYY-MM-DD",
			},
			"contact_info": optStr("phone, WhatsApp, email or handle to apply"),
			"project_type": optStr("film, series, commercial, theatre, music video, ..."),
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
		},
	}
}
