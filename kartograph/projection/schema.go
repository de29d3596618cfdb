package projection

import "github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"

// Object types and relations of the platform's SpiceDB schema. The reference
// translators only ever emit these, so a schema change shows up here first.
const (
	ObjectTypeTenant    = "tenant"
	ObjectTypeGroup     = "group"
	ObjectTypeWorkspace = "workspace"
	ObjectTypePrincipal = "principal"
	ObjectTypeAPIKey    = "apikey"
)

const (
	RelationTenant = "tenant"
	RelationMember = "member"
	RelationOwner  = "owner"
	RelationAdmin  = "admin"
)

func tenantRef(id string) spicedb.ObjectRef {
	return spicedb.ObjectRef{Type: ObjectTypeTenant, ID: id}
}

func groupRef(id string) spicedb.ObjectRef {
	return spicedb.ObjectRef{Type: ObjectTypeGroup, ID: id}
}

func workspaceRef(id string) spicedb.ObjectRef {
	return spicedb.ObjectRef{Type: ObjectTypeWorkspace, ID: id}
}

func principalRef(id string) spicedb.ObjectRef {
	return spicedb.ObjectRef{Type: ObjectTypePrincipal, ID: id}
}

func apiKeyRef(id string) spicedb.ObjectRef {
	return spicedb.ObjectRef{Type: ObjectTypeAPIKey, ID: id}
}
