package constants

// Durable queue names. They double as DLQ stage labels.
const (
	QueueIngestion  = "ingestion"
	QueueValidation = "validation"
)

// StageOutbox labels dead letters produced by the outbox dispatcher.
const StageOutbox = "outbox"

// Domain event types written to the outbox.
const (
	EventCastingCallCreated = "casting_call.created"
)

// Downstream destinations.
const (
	DestinationIndexing = "indexing"
	DestinationAlerting = "alerting"
)

// SourceKind selects the poller for a source row.
type SourceKind string

const (
	SourceKindChat   SourceKind = "chat_group"
	SourceKindPage   SourceKind = "web_page"
	SourceKindSocial SourceKind = "social_account"
)

// ParseSourceKind accepts canonical names and a few short aliases.
func ParseSourceKind(s string) (SourceKind, bool) {
	switch s {
	case string(SourceKindChat), "chat", "group":
		return SourceKindChat, true
	case string(SourceKindPage), "page", "web":
		return SourceKindPage, true
	case string(SourceKindSocial), "social":
		return SourceKindSocial, true
	}
	return "", false
}
