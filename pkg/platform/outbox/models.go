package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a pending domain event waiting to be published.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // "certificate"
	AggregateID   string // certificate fingerprint
	EventType     string // "certificate_issued", "certificate_status_updated", ...
	Payload       []byte // JSON-encoded event body
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil until published
}

// IsPending returns true if this entry has not been processed yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry creates a new outbox entry with a generated UUID.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, now time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
}
