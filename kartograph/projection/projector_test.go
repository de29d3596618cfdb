//go:build unit

package projection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	mu         sync.Mutex
	applied    []spicedb.RelationshipOperation
	calls      int
	failOnCall int
	failErr    error
}

func (fake *fakeApplier) Apply(_ context.Context, op spicedb.RelationshipOperation) error {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	fake.calls++

	if fake.failOnCall != 0 && fake.calls == fake.failOnCall {
		return fake.failErr
	}

	fake.applied = append(fake.applied, op)

	return nil
}

func (fake *fakeApplier) heal() {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	fake.failOnCall = 0
}

func newTestProjector(t *testing.T, applier spicedb.Applier, opts ...ProjectorOption) *Projector {
	t.Helper()

	codec := outbox.NewCodec()
	require.NoError(t, RegisterEvents(codec))

	registry, err := NewDefaultRegistry()
	require.NoError(t, err)

	projector, err := NewProjector(codec, registry, applier, opts...)
	require.NoError(t, err)

	return projector
}

func newTestEntry(eventType, payload string) *outbox.Entry {
	return &outbox.Entry{
		ID:            uuid.New(),
		AggregateType: "group",
		AggregateID:   "g1",
		EventType:     eventType,
		Payload:       json.RawMessage(payload),
		OccurredAt:    time.Now().UTC(),
	}
}

func TestNewProjectorValidation(t *testing.T) {
	t.Parallel()

	codec := outbox.NewCodec()

	registry, err := NewDefaultRegistry()
	require.NoError(t, err)

	_, err = NewProjector(nil, registry, &fakeApplier{})
	require.ErrorIs(t, err, ErrCodecRequired)

	_, err = NewProjector(codec, nil, &fakeApplier{})
	require.ErrorIs(t, err, ErrRegistryRequired)

	_, err = NewProjector(codec, registry, nil)
	require.ErrorIs(t, err, ErrApplierRequired)

	var typedNil *fakeApplier

	_, err = NewProjector(codec, registry, typedNil)
	require.ErrorIs(t, err, ErrApplierRequired)

	projector, err := NewProjector(codec, registry, &fakeApplier{}, nil, WithLogger(nil))
	require.NoError(t, err)
	require.NotNil(t, projector.logger)
}

func TestHandleProjectsGroupCreated(t *testing.T) {
	t.Parallel()

	applier := &fakeApplier{}
	projector := newTestProjector(t, applier)

	entry := newTestEntry(EventTypeGroupCreated, `{"group_id":"g1","tenant_id":"t1"}`)
	require.NoError(t, projector.Handle(context.Background(), entry))

	require.Len(t, applier.applied, 1)
	assert.Equal(t, spicedb.WriteRelationship(groupRef("g1"), RelationTenant, tenantRef("t1")), applier.applied[0])
	assert.Equal(t, "group:g1#tenant@tenant:t1", applier.applied[0].String())
}

func TestHandleAppliesOperationsInOrder(t *testing.T) {
	t.Parallel()

	applier := &fakeApplier{}
	projector := newTestProjector(t, applier)

	entry := newTestEntry(EventTypeAPIKeyIssued, `{"key_id":"k1","principal_id":"p1","tenant_id":"t1"}`)
	require.NoError(t, projector.Handle(context.Background(), entry))

	assert.Equal(t, []spicedb.RelationshipOperation{
		spicedb.WriteRelationship(apiKeyRef("k1"), RelationOwner, principalRef("p1")),
		spicedb.WriteRelationship(apiKeyRef("k1"), RelationTenant, tenantRef("t1")),
	}, applier.applied)
}

func TestHandleUnknownEventType(t *testing.T) {
	t.Parallel()

	applier := &fakeApplier{}
	projector := newTestProjector(t, applier)

	entry := newTestEntry("billing.invoiced", `{}`)
	err := projector.Handle(context.Background(), entry)
	require.ErrorIs(t, err, outbox.ErrDecoderNotRegistered)
	assert.ErrorContains(t, err, "decoding entry")
	assert.Empty(t, applier.applied)
}

func TestHandleNoTranslator(t *testing.T) {
	t.Parallel()

	codec := outbox.NewCodec()
	require.NoError(t, RegisterEvents(codec))
	require.NoError(t, outbox.RegisterJSON[GroupCreated](codec, "group.renamed"))

	registry, err := NewDefaultRegistry()
	require.NoError(t, err)

	applier := &fakeApplier{}

	projector, err := NewProjector(codec, registry, applier)
	require.NoError(t, err)

	entry := newTestEntry("group.renamed", `{"group_id":"g1"}`)
	err = projector.Handle(context.Background(), entry)
	require.ErrorIs(t, err, ErrNoTranslator)
	assert.ErrorContains(t, err, "translating entry")
	assert.Empty(t, applier.applied)
}

func TestHandleMalformedPayload(t *testing.T) {
	t.Parallel()

	applier := &fakeApplier{}
	projector := newTestProjector(t, applier)

	entry := newTestEntry(EventTypeGroupCreated, `{"group_id":`)
	err := projector.Handle(context.Background(), entry)
	require.Error(t, err)
	assert.ErrorContains(t, err, "decoding entry")
	assert.Empty(t, applier.applied)
}

func TestHandlePartialApplicationConverges(t *testing.T) {
	t.Parallel()

	errStore := errors.New("spicedb unavailable")
	applier := &fakeApplier{failOnCall: 2, failErr: errStore}
	projector := newTestProjector(t, applier)

	entry := newTestEntry(EventTypeAPIKeyIssued, `{"key_id":"k1","principal_id":"p1","tenant_id":"t1"}`)

	err := projector.Handle(context.Background(), entry)
	require.ErrorIs(t, err, errStore)
	assert.ErrorContains(t, err, "applying operation 2 of 2")
	require.Len(t, applier.applied, 1)

	// The retry re-applies the already-written operation; touch semantics
	// make that a no-op on the store.
	applier.heal()
	require.NoError(t, projector.Handle(context.Background(), entry))

	require.Len(t, applier.applied, 3)
	assert.Equal(t, spicedb.WriteRelationship(apiKeyRef("k1"), RelationOwner, principalRef("p1")), applier.applied[1])
	assert.Equal(t, spicedb.WriteRelationship(apiKeyRef("k1"), RelationTenant, tenantRef("t1")), applier.applied[2])
}

func TestHandleValidation(t *testing.T) {
	t.Parallel()

	applier := &fakeApplier{}
	projector := newTestProjector(t, applier)

	require.ErrorIs(t, projector.Handle(context.Background(), nil), outbox.ErrEntryRequired)

	var nilProjector *Projector

	entry := newTestEntry(EventTypeGroupCreated, `{"group_id":"g1","tenant_id":"t1"}`)
	require.ErrorIs(t, nilProjector.Handle(context.Background(), entry), ErrProjectorNotInitialized)

	bare := &Projector{}
	require.ErrorIs(t, bare.Handle(context.Background(), entry), ErrProjectorNotInitialized)
}
