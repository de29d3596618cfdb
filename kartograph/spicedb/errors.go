package spicedb

import "errors"

var (
	// ErrEndpointRequired indicates that NewClient was asked to dial without
	// an endpoint and without an injected permissions client.
	ErrEndpointRequired = errors.New("spicedb endpoint is required")

	// ErrBearerTokenRequired indicates a TLS connection without a preshared key.
	ErrBearerTokenRequired = errors.New("spicedb bearer token is required")

	// ErrClientNotInitialized indicates a Client that was not built by NewClient.
	ErrClientNotInitialized = errors.New("spicedb client not initialized")

	// ErrInvalidOperationKind indicates a relationship operation whose kind is
	// neither a write nor a delete.
	ErrInvalidOperationKind = errors.New("invalid relationship operation kind")

	// ErrRelationRequired indicates a write operation without a relation.
	ErrRelationRequired = errors.New("relation is required")

	// ErrSubjectRequired indicates a write operation without a subject.
	ErrSubjectRequired = errors.New("subject is required")

	// ErrPermissionRequired indicates a permission check without a permission name.
	ErrPermissionRequired = errors.New("permission is required")

	// ErrInvalidObjectType indicates an object type that does not match the
	// SpiceDB namespace grammar.
	ErrInvalidObjectType = errors.New("invalid spicedb object type")

	// ErrInvalidObjectID indicates an object id outside the SpiceDB id charset.
	ErrInvalidObjectID = errors.New("invalid spicedb object id")

	// ErrInvalidRelation indicates a relation or permission name that does not
	// match the SpiceDB relation grammar.
	ErrInvalidRelation = errors.New("invalid spicedb relation")
)
