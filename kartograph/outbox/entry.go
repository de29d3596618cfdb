package outbox

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxPayloadBytes bounds the serialized payload stored per entry.
const DefaultMaxPayloadBytes = 1 << 20

// Status is the derived lifecycle state of an entry. There is no status
// column in storage; the state follows from the terminal timestamps.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

// Entry is one outbox row: a serialized domain event plus delivery
// bookkeeping. At most one of ProcessedAt and FailedAt is set; both nil
// means the entry is pending.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	OccurredAt    time.Time
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	RetryCount    int
	LastError     string
	FailedAt      *time.Time
}

// Status derives the lifecycle state from the terminal timestamps. FailedAt
// wins over ProcessedAt so a corrupt row reads as dead-lettered rather than
// silently done.
func (entry *Entry) Status() Status {
	switch {
	case entry == nil:
		return StatusPending
	case entry.FailedAt != nil:
		return StatusFailed
	case entry.ProcessedAt != nil:
		return StatusProcessed
	default:
		return StatusPending
	}
}

// Validate checks the invariants required before an entry is persisted.
func (entry *Entry) Validate() error {
	if entry == nil {
		return ErrEntryRequired
	}

	if entry.ID == uuid.Nil {
		return ErrEntryIDRequired
	}

	if strings.TrimSpace(entry.EventType) == "" {
		return ErrEventTypeRequired
	}

	if len(entry.Payload) == 0 {
		return ErrPayloadRequired
	}

	if len(entry.Payload) > DefaultMaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	if !json.Valid(entry.Payload) {
		return ErrPayloadNotJSON
	}

	return nil
}
