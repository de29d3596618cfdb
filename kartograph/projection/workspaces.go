package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"
)

const (
	EventTypeWorkspaceCreated  = "workspace.created"
	EventTypeWorkspaceArchived = "workspace.archived"
)

// WorkspaceCreated records a new workspace inside a tenant.
type WorkspaceCreated struct {
	WorkspaceID string    `json:"workspace_id"`
	TenantID    string    `json:"tenant_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (event WorkspaceCreated) EventType() string { return EventTypeWorkspaceCreated }

func (event WorkspaceCreated) EventOccurredAt() time.Time { return event.OccurredAt }

// WorkspaceArchived records a workspace leaving active use. Projection drops
// every relationship the workspace resource participates in, so archived
// workspaces stop answering permission checks immediately.
type WorkspaceArchived struct {
	WorkspaceID string    `json:"workspace_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (event WorkspaceArchived) EventType() string { return EventTypeWorkspaceArchived }

func (event WorkspaceArchived) EventOccurredAt() time.Time { return event.OccurredAt }

// WorkspaceTranslator projects workspace lifecycle events.
type WorkspaceTranslator struct{}

func (WorkspaceTranslator) EventTypes() []string {
	return []string{EventTypeWorkspaceCreated, EventTypeWorkspaceArchived}
}

func (WorkspaceTranslator) Translate(_ context.Context, event outbox.Event) ([]spicedb.RelationshipOperation, error) {
	switch typed := event.(type) {
	case WorkspaceCreated:
		return []spicedb.RelationshipOperation{
			spicedb.WriteRelationship(workspaceRef(typed.WorkspaceID), RelationTenant, tenantRef(typed.TenantID)),
		}, nil
	case WorkspaceArchived:
		return []spicedb.RelationshipOperation{
			spicedb.DeleteRelationship(workspaceRef(typed.WorkspaceID), "", spicedb.ObjectRef{}),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}
}
