//go:build unit

package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTranslator struct {
	eventTypes []string
	ops        []spicedb.RelationshipOperation
	err        error
}

func (translator staticTranslator) EventTypes() []string { return translator.eventTypes }

func (translator staticTranslator) Translate(context.Context, outbox.Event) ([]spicedb.RelationshipOperation, error) {
	return translator.ops, translator.err
}

func TestNewRegistryValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(nil)
	require.ErrorIs(t, err, ErrTranslatorRequired)

	var typedNil *staticTranslator

	_, err = NewRegistry(typedNil)
	require.ErrorIs(t, err, ErrTranslatorRequired)

	_, err = NewRegistry(staticTranslator{eventTypes: []string{"  "}})
	require.ErrorIs(t, err, ErrEventTypeRequired)

	_, err = NewRegistry(
		staticTranslator{eventTypes: []string{"group.created"}},
		staticTranslator{eventTypes: []string{"group.created"}},
	)
	require.ErrorIs(t, err, ErrTranslatorAlreadyRegistered)

	_, err = NewRegistry(staticTranslator{eventTypes: []string{"group.created", "group.created"}})
	require.ErrorIs(t, err, ErrTranslatorAlreadyRegistered)
}

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	want := []spicedb.RelationshipOperation{
		spicedb.WriteRelationship(groupRef("g-1"), RelationMember, principalRef("p-1")),
	}

	registry, err := NewRegistry(staticTranslator{eventTypes: []string{"group.member_added"}, ops: want})
	require.NoError(t, err)

	ops, err := registry.Translate(ctx, "group.member_added", GroupMemberAdded{})
	require.NoError(t, err)
	assert.Equal(t, want, ops)

	_, err = registry.Translate(ctx, "billing.invoiced", GroupMemberAdded{})
	require.ErrorIs(t, err, ErrNoTranslator)

	var nilRegistry *Registry

	_, err = nilRegistry.Translate(ctx, "group.member_added", GroupMemberAdded{})
	require.ErrorIs(t, err, ErrNoTranslator)
	assert.Nil(t, nilRegistry.EventTypes())
}

func TestRegistryWrapsTranslatorError(t *testing.T) {
	t.Parallel()

	errTranslate := errors.New("tenant id missing")

	registry, err := NewRegistry(staticTranslator{eventTypes: []string{"group.created"}, err: errTranslate})
	require.NoError(t, err)

	_, err = registry.Translate(context.Background(), "group.created", GroupCreated{})
	require.ErrorIs(t, err, errTranslate)
	assert.ErrorContains(t, err, "translating group.created")
}

func TestDefaultRegistryCoversReferenceEvents(t *testing.T) {
	t.Parallel()

	registry, err := NewDefaultRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventTypeAPIKeyIssued,
		EventTypeAPIKeyRevoked,
		EventTypeGroupCreated,
		EventTypeGroupDeleted,
		EventTypeGroupMemberAdded,
		EventTypeGroupMemberRemoved,
		EventTypeTenantProvisioned,
		EventTypeWorkspaceArchived,
		EventTypeWorkspaceCreated,
	}, registry.EventTypes())
}

func TestReferenceEventContracts(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	events := []struct {
		event     outbox.Event
		eventType string
	}{
		{GroupCreated{OccurredAt: now}, EventTypeGroupCreated},
		{GroupDeleted{OccurredAt: now}, EventTypeGroupDeleted},
		{GroupMemberAdded{OccurredAt: now}, EventTypeGroupMemberAdded},
		{GroupMemberRemoved{OccurredAt: now}, EventTypeGroupMemberRemoved},
		{WorkspaceCreated{OccurredAt: now}, EventTypeWorkspaceCreated},
		{WorkspaceArchived{OccurredAt: now}, EventTypeWorkspaceArchived},
		{APIKeyIssued{OccurredAt: now}, EventTypeAPIKeyIssued},
		{APIKeyRevoked{OccurredAt: now}, EventTypeAPIKeyRevoked},
		{TenantProvisioned{OccurredAt: now}, EventTypeTenantProvisioned},
	}

	for _, tc := range events {
		assert.Equal(t, tc.eventType, tc.event.EventType())
		assert.Equal(t, now, tc.event.EventOccurredAt())
	}
}

func TestGroupTranslations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	translator := GroupTranslator{}

	ops, err := translator.Translate(ctx, GroupCreated{GroupID: "g1", Name: "platform", TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, spicedb.WriteRelationship(groupRef("g1"), RelationTenant, tenantRef("t1")), ops[0])
	assert.Equal(t, "group:g1#tenant@tenant:t1", ops[0].String())

	ops, err = translator.Translate(ctx, GroupDeleted{GroupID: "g1"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, spicedb.DeleteRelationship(groupRef("g1"), "", spicedb.ObjectRef{}), ops[0])

	ops, err = translator.Translate(ctx, GroupMemberAdded{GroupID: "g1", PrincipalID: "p1"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, spicedb.WriteRelationship(groupRef("g1"), RelationMember, principalRef("p1")), ops[0])

	ops, err = translator.Translate(ctx, GroupMemberRemoved{GroupID: "g1", PrincipalID: "p1"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, spicedb.DeleteRelationship(groupRef("g1"), RelationMember, principalRef("p1")), ops[0])

	_, err = translator.Translate(ctx, TenantProvisioned{})
	require.ErrorIs(t, err, ErrUnexpectedEvent)
}

func TestWorkspaceTranslations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	translator := WorkspaceTranslator{}

	ops, err := translator.Translate(ctx, WorkspaceCreated{WorkspaceID: "w1", TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, spicedb.WriteRelationship(workspaceRef("w1"), RelationTenant, tenantRef("t1")), ops[0])

	ops, err = translator.Translate(ctx, WorkspaceArchived{WorkspaceID: "w1"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, spicedb.DeleteRelationship(workspaceRef("w1"), "", spicedb.ObjectRef{}), ops[0])

	_, err = translator.Translate(ctx, GroupCreated{})
	require.ErrorIs(t, err, ErrUnexpectedEvent)
}

func TestAPIKeyTranslations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	translator := APIKeyTranslator{}

	ops, err := translator.Translate(ctx, APIKeyIssued{KeyID: "k1", PrincipalID: "p1", TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []spicedb.RelationshipOperation{
		spicedb.WriteRelationship(apiKeyRef("k1"), RelationOwner, principalRef("p1")),
		spicedb.WriteRelationship(apiKeyRef("k1"), RelationTenant, tenantRef("t1")),
	}, ops)

	ops, err = translator.Translate(ctx, APIKeyRevoked{KeyID: "k1"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, spicedb.DeleteRelationship(apiKeyRef("k1"), "", spicedb.ObjectRef{}), ops[0])

	_, err = translator.Translate(ctx, GroupDeleted{})
	require.ErrorIs(t, err, ErrUnexpectedEvent)
}

func TestTenantTranslations(t *testing.T) {
	t.Parallel()

	translator := TenantTranslator{}

	ops, err := translator.Translate(context.Background(), TenantProvisioned{TenantID: "t1", AdminID: "p1"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, spicedb.WriteRelationship(tenantRef("t1"), RelationAdmin, principalRef("p1")), ops[0])

	_, err = translator.Translate(context.Background(), WorkspaceArchived{})
	require.ErrorIs(t, err, ErrUnexpectedEvent)
}

func TestRegisterEvents(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, RegisterEvents(nil), ErrCodecRequired)

	codec := outbox.NewCodec()
	require.NoError(t, RegisterEvents(codec))

	event, err := codec.Decode(EventTypeGroupCreated, []byte(`{"group_id":"g1","tenant_id":"t1"}`))
	require.NoError(t, err)

	created, ok := event.(GroupCreated)
	require.True(t, ok)
	assert.Equal(t, "g1", created.GroupID)
	assert.Equal(t, "t1", created.TenantID)

	require.ErrorIs(t, RegisterEvents(codec), outbox.ErrDecoderAlreadyRegistered)
}
