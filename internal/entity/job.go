package entity

import (
	"encoding/json"
	"time"

	"github.com/joseph-ayodele/casting-aggregator/constants"
)

// Job is a row of a durable work queue.
type Job struct {
	ID          string              `json:"id"`
	Queue       string              `json:"queue"`
	Payload     json.RawMessage     `json:"payload"`
	Status      constants.JobStatus `json:"status"`
	Attempts    int                 `json:"attempts"`
	NextRunAt   time.Time           `json:"next_run_at"`
	LockedUntil *time.Time          `json:"locked_until,omitempty"`
	LastError   *string             `json:"last_error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// DeadLetter preserves a permanently failed job or event for triage.
type DeadLetter struct {
	ID       string          `json:"id"`
	Stage    string          `json:"stage"`
	SourceID string          `json:"source_id"` // original job or outbox id
	Payload  json.RawMessage `json:"payload"`
	Error    string          `json:"error"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
}

// OutboxEntry is a domain event co-written with the record it describes.
type OutboxEntry struct {
	ID          string                 `json:"id"`
	AggregateID string                 `json:"aggregate_id"`
	EventType   string                 `json:"event_type"`
	Payload     json.RawMessage        `json:"payload"`
	Status      constants.OutboxStatus `json:"status"`
	Attempts    int                    `json:"attempts"`
	NextRunAt   time.Time              `json:"next_run_at"`
	LastError   *string                `json:"last_error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
}
