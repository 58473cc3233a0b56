package entity

import (
	"time"

	"github.com/joseph-ayodele/casting-aggregator/constants"
)

// Source is a configured origin of raw content.
type Source struct {
	ID              string               `json:"id"`
	Kind            constants.SourceKind `json:"kind"`
	Locator         string               `json:"locator"` // group id, page url or social handle
	Name            string               `json:"name"`
	Enabled         bool                 `json:"enabled"`
	LastProcessedAt *time.Time           `json:"last_processed_at,omitempty"`
	ErrorCount      int                  `json:"error_count"`
	LastError       *string              `json:"last_error,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}
