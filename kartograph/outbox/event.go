package outbox

import "time"

// Event is the contract domain events satisfy to pass through the outbox.
// EventType is the stable discriminator under which a decoder is registered;
// EventOccurredAt is the business time of the change, distinct from the
// append time recorded on the entry.
type Event interface {
	EventType() string
	EventOccurredAt() time.Time
}
