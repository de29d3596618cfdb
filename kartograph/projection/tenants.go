package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"
)

const EventTypeTenantProvisioned = "tenant.provisioned"

// TenantProvisioned records a new tenant and its first administrator.
type TenantProvisioned struct {
	TenantID   string    `json:"tenant_id"`
	AdminID    string    `json:"admin_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (event TenantProvisioned) EventType() string { return EventTypeTenantProvisioned }

func (event TenantProvisioned) EventOccurredAt() time.Time { return event.OccurredAt }

// TenantTranslator projects tenant provisioning.
type TenantTranslator struct{}

func (TenantTranslator) EventTypes() []string {
	return []string{EventTypeTenantProvisioned}
}

func (TenantTranslator) Translate(_ context.Context, event outbox.Event) ([]spicedb.RelationshipOperation, error) {
	typed, ok := event.(TenantProvisioned)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}

	return []spicedb.RelationshipOperation{
		spicedb.WriteRelationship(tenantRef(typed.TenantID), RelationAdmin, principalRef(typed.AdminID)),
	}, nil
}
