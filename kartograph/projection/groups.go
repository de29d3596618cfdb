package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"
)

const (
	EventTypeGroupCreated       = "group.created"
	EventTypeGroupDeleted       = "group.deleted"
	EventTypeGroupMemberAdded   = "group.member_added"
	EventTypeGroupMemberRemoved = "group.member_removed"
)

// GroupCreated records a new group inside a tenant.
type GroupCreated struct {
	GroupID    string    `json:"group_id"`
	Name       string    `json:"name"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (event GroupCreated) EventType() string { return EventTypeGroupCreated }

func (event GroupCreated) EventOccurredAt() time.Time { return event.OccurredAt }

// GroupDeleted records a group removal. Projection drops every relationship
// the group resource participates in, memberships included.
type GroupDeleted struct {
	GroupID    string    `json:"group_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (event GroupDeleted) EventType() string { return EventTypeGroupDeleted }

func (event GroupDeleted) EventOccurredAt() time.Time { return event.OccurredAt }

// GroupMemberAdded records a principal joining a group.
type GroupMemberAdded struct {
	GroupID     string    `json:"group_id"`
	PrincipalID string    `json:"principal_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (event GroupMemberAdded) EventType() string { return EventTypeGroupMemberAdded }

func (event GroupMemberAdded) EventOccurredAt() time.Time { return event.OccurredAt }

// GroupMemberRemoved records a principal leaving a group.
type GroupMemberRemoved struct {
	GroupID     string    `json:"group_id"`
	PrincipalID string    `json:"principal_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (event GroupMemberRemoved) EventType() string { return EventTypeGroupMemberRemoved }

func (event GroupMemberRemoved) EventOccurredAt() time.Time { return event.OccurredAt }

// GroupTranslator projects group lifecycle and membership events.
type GroupTranslator struct{}

func (GroupTranslator) EventTypes() []string {
	return []string{
		EventTypeGroupCreated,
		EventTypeGroupDeleted,
		EventTypeGroupMemberAdded,
		EventTypeGroupMemberRemoved,
	}
}

func (GroupTranslator) Translate(_ context.Context, event outbox.Event) ([]spicedb.RelationshipOperation, error) {
	switch typed := event.(type) {
	case GroupCreated:
		return []spicedb.RelationshipOperation{
			spicedb.WriteRelationship(groupRef(typed.GroupID), RelationTenant, tenantRef(typed.TenantID)),
		}, nil
	case GroupDeleted:
		return []spicedb.RelationshipOperation{
			spicedb.DeleteRelationship(groupRef(typed.GroupID), "", spicedb.ObjectRef{}),
		}, nil
	case GroupMemberAdded:
		return []spicedb.RelationshipOperation{
			spicedb.WriteRelationship(groupRef(typed.GroupID), RelationMember, principalRef(typed.PrincipalID)),
		}, nil
	case GroupMemberRemoved:
		return []spicedb.RelationshipOperation{
			spicedb.DeleteRelationship(groupRef(typed.GroupID), RelationMember, principalRef(typed.PrincipalID)),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}
}
