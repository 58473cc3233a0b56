// Package pipeline holds the extraction and validation stages that sit
// between the ingestion queue and the durable store.
package pipeline

import "fmt"

// OutcomeKind is the terminal result of a stage for one item.
type OutcomeKind string

const (
	OutcomeFiltered       OutcomeKind = "filtered"
	OutcomeNotCastingCall OutcomeKind = "not_casting_call"
	OutcomeQueued         OutcomeKind = "queued"
	OutcomeCreated        OutcomeKind = "created"
	OutcomeDuplicate      OutcomeKind = "duplicate"
	OutcomeRejected       OutcomeKind = "rejected"
)

// Outcome is a successful, non-error result. Filtered, NotCastingCall,
// Duplicate and Rejected are normal branches, not failures.
type Outcome struct {
	Kind   OutcomeKind
	ID     string // record id for created/duplicate, job id for queued
	Reason string
}

func (o Outcome) String() string {
	switch {
	case o.ID != "":
		return fmt.Sprintf("%s(%s)", o.Kind, o.ID)
	case o.Reason != "":
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	}
	return string(o.Kind)
}
