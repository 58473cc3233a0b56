package constants

// RecordStatus is the lifecycle state of a casting_calls row.
type RecordStatus string

// Stable values (store these exact strings in DB).
const (
	RecordStatusPendingReview RecordStatus = "pending_review" // created by the pipeline
	RecordStatusOpen          RecordStatus = "open"           // approved by review
	RecordStatusRejected      RecordStatus = "rejected"       // declined by review
	RecordStatusDead          RecordStatus = "dead"           // expired or withdrawn
)

var allRecordStatuses = []RecordStatus{
	RecordStatusPendingReview,
	RecordStatusOpen,
	RecordStatusRejected,
	RecordStatusDead,
}

// ParseRecordStatus accepts the canonical string form only.
func ParseRecordStatus(s string) (RecordStatus, bool) {
	for _, st := range allRecordStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusDead      OutboxStatus = "dead"
)

// JobStatus is the state of a row in the jobs table.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending" // waiting for next_run_at
	JobStatusRunning JobStatus = "running" // leased by a worker until locked_until
)
