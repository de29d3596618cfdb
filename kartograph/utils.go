package kartograph

import (
	"github.com/google/uuid"
)

// IsUUID reports whether s parses as a UUID in any accepted textual form.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)

	return err == nil
}

// GenerateUUIDv7 generates a time-ordered UUID v7. Outbox entry IDs use v7 so
// that primary key order follows append order.
func GenerateUUIDv7() (uuid.UUID, error) {
	return uuid.NewV7()
}
