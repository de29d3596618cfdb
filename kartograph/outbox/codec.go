package outbox

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// DecodeFunc decodes a stored payload back into its domain event.
type DecodeFunc func(payload []byte) (Event, error)

// Codec maps event-type discriminators to decoders. Payloads are stored as
// JSON; decoding an unregistered type is an error so unknown events take the
// retry path instead of being silently dropped.
type Codec struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

// NewCodec creates an empty codec.
func NewCodec() *Codec {
	return &Codec{decoders: map[string]DecodeFunc{}}
}

// Register binds a decoder to an event type. Registering the same type twice
// is a configuration error.
func (codec *Codec) Register(eventType string, decode DecodeFunc) error {
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		return ErrEventTypeRequired
	}

	if decode == nil {
		return ErrDecoderRequired
	}

	codec.mu.Lock()
	defer codec.mu.Unlock()

	if codec.decoders == nil {
		codec.decoders = make(map[string]DecodeFunc)
	}

	if _, exists := codec.decoders[normalized]; exists {
		return fmt.Errorf("%w: %s", ErrDecoderAlreadyRegistered, normalized)
	}

	codec.decoders[normalized] = decode

	return nil
}

// Encode serializes an event for storage.
func (codec *Codec) Encode(event Event) (json.RawMessage, error) {
	if event == nil {
		return nil, ErrEventRequired
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encoding event %q: %w", event.EventType(), err)
	}

	if len(payload) > DefaultMaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	return payload, nil
}

// Decode reconstructs the domain event stored under the given type.
func (codec *Codec) Decode(eventType string, payload []byte) (Event, error) {
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		return nil, ErrEventTypeRequired
	}

	codec.mu.RLock()
	decode, ok := codec.decoders[normalized]
	codec.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDecoderNotRegistered, normalized)
	}

	event, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding event %q: %w", normalized, err)
	}

	return event, nil
}

// RegisterJSON registers a plain json.Unmarshal decoder for a value event
// type. E must implement Event on its value receiver.
func RegisterJSON[E Event](codec *Codec, eventType string) error {
	return codec.Register(eventType, func(payload []byte) (Event, error) {
		var event E
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}

		return event, nil
	})
}
