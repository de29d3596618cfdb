//go:build unit

package outbox

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type groupCreatedEvent struct {
	GroupID    string    `json:"group_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (event groupCreatedEvent) EventType() string          { return "group.created" }
func (event groupCreatedEvent) EventOccurredAt() time.Time { return event.OccurredAt }

type unmarshalableEvent struct {
	Ch chan int `json:"ch"`
}

func (event unmarshalableEvent) EventType() string          { return "broken.event" }
func (event unmarshalableEvent) EventOccurredAt() time.Time { return time.Time{} }

func TestCodec_EncodeDecodeRoundtrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec()
	require.NoError(t, RegisterJSON[groupCreatedEvent](codec, "group.created"))

	original := groupCreatedEvent{
		GroupID:    "g-1",
		TenantID:   "t-1",
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	payload, err := codec.Encode(original)
	require.NoError(t, err)
	require.True(t, json.Valid(payload))

	decoded, err := codec.Decode("group.created", payload)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestCodec_RegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	codec := NewCodec()
	require.NoError(t, RegisterJSON[groupCreatedEvent](codec, "group.created"))

	err := RegisterJSON[groupCreatedEvent](codec, "group.created")
	require.ErrorIs(t, err, ErrDecoderAlreadyRegistered)
	assert.ErrorContains(t, err, "group.created")
}

func TestCodec_RegisterNormalizesEventType(t *testing.T) {
	t.Parallel()

	codec := NewCodec()
	require.NoError(t, RegisterJSON[groupCreatedEvent](codec, "  group.created  "))

	_, err := codec.Decode("group.created", []byte(`{}`))
	require.NoError(t, err)
}

func TestCodec_RegisterValidation(t *testing.T) {
	t.Parallel()

	codec := NewCodec()

	require.ErrorIs(t, codec.Register("  ", func([]byte) (Event, error) { return nil, nil }), ErrEventTypeRequired)
	require.ErrorIs(t, codec.Register("group.created", nil), ErrDecoderRequired)
}

func TestCodec_DecodeUnknownType(t *testing.T) {
	t.Parallel()

	codec := NewCodec()

	_, err := codec.Decode("workspace.created", []byte(`{}`))
	require.ErrorIs(t, err, ErrDecoderNotRegistered)
	assert.ErrorContains(t, err, "workspace.created")
}

func TestCodec_DecodeWrapsDecodeFailure(t *testing.T) {
	t.Parallel()

	codec := NewCodec()
	require.NoError(t, RegisterJSON[groupCreatedEvent](codec, "group.created"))

	_, err := codec.Decode("group.created", []byte(`{"group_id":`))
	require.Error(t, err)
	assert.ErrorContains(t, err, `decoding event "group.created"`)
}

func TestCodec_EncodeValidation(t *testing.T) {
	t.Parallel()

	codec := NewCodec()

	_, err := codec.Encode(nil)
	require.ErrorIs(t, err, ErrEventRequired)

	_, err = codec.Encode(unmarshalableEvent{Ch: make(chan int)})
	require.Error(t, err)
	assert.ErrorContains(t, err, "broken.event")
}

func TestCodec_EncodeRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	codec := NewCodec()

	oversized := groupCreatedEvent{GroupID: strings.Repeat("x", DefaultMaxPayloadBytes)}

	_, err := codec.Encode(oversized)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestCodec_ZeroValueIsUsable(t *testing.T) {
	t.Parallel()

	var codec Codec

	require.NoError(t, codec.Register("group.created", func([]byte) (Event, error) {
		return groupCreatedEvent{}, nil
	}))

	_, err := codec.Decode("group.created", []byte(`{}`))
	require.NoError(t, err)
}
