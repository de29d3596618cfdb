package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"
)

const (
	EventTypeAPIKeyIssued  = "apikey.issued"
	EventTypeAPIKeyRevoked = "apikey.revoked"
)

// APIKeyIssued records a key issued to a principal within a tenant.
type APIKeyIssued struct {
	KeyID       string    `json:"key_id"`
	PrincipalID string    `json:"principal_id"`
	TenantID    string    `json:"tenant_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (event APIKeyIssued) EventType() string { return EventTypeAPIKeyIssued }

func (event APIKeyIssued) EventOccurredAt() time.Time { return event.OccurredAt }

// APIKeyRevoked records a key revocation. Projection drops every relationship
// of the key resource, cutting both its owner and tenant edges at once.
type APIKeyRevoked struct {
	KeyID      string    `json:"key_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (event APIKeyRevoked) EventType() string { return EventTypeAPIKeyRevoked }

func (event APIKeyRevoked) EventOccurredAt() time.Time { return event.OccurredAt }

// APIKeyTranslator projects API key issuance and revocation. Issuance is the
// one reference translation producing two operations, which is what makes
// partial application a real case for the projector.
type APIKeyTranslator struct{}

func (APIKeyTranslator) EventTypes() []string {
	return []string{EventTypeAPIKeyIssued, EventTypeAPIKeyRevoked}
}

func (APIKeyTranslator) Translate(_ context.Context, event outbox.Event) ([]spicedb.RelationshipOperation, error) {
	switch typed := event.(type) {
	case APIKeyIssued:
		return []spicedb.RelationshipOperation{
			spicedb.WriteRelationship(apiKeyRef(typed.KeyID), RelationOwner, principalRef(typed.PrincipalID)),
			spicedb.WriteRelationship(apiKeyRef(typed.KeyID), RelationTenant, tenantRef(typed.TenantID)),
		}, nil
	case APIKeyRevoked:
		return []spicedb.RelationshipOperation{
			spicedb.DeleteRelationship(apiKeyRef(typed.KeyID), "", spicedb.ObjectRef{}),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}
}
