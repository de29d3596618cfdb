package spicedb

import (
	"fmt"
	"regexp"
)

// OperationKind discriminates the relationship operation union.
type OperationKind string

const (
	// OpWriteRelationship upserts a single relationship.
	OpWriteRelationship OperationKind = "write_relationship"
	// OpDeleteRelationship deletes every relationship matching the operation's
	// resource, optional relation, and optional subject.
	OpDeleteRelationship OperationKind = "delete_relationship"
)

// Grammar enforced by SpiceDB for object types, object ids, and relation
// names. Validating here fails bad translations before they reach the wire.
// Go's regexp caps counted repeats at 1000, so the 1-1024 object id length
// is expressed as two stacked repeats of the same class.
var (
	objectTypePattern = regexp.MustCompile(`^([a-z][a-z0-9_]{1,61}[a-z0-9]/)?[a-z][a-z0-9_]{1,62}[a-z0-9]$`)
	objectIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9/_|\-=+]{1,512}[a-zA-Z0-9/_|\-=+]{0,512}$`)
	relationPattern   = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}[a-z0-9]$`)
)

// ObjectRef names a single object in the permission graph.
type ObjectRef struct {
	Type string
	ID   string
}

// String renders the reference as type:id, or just the type when the id is
// empty (a type-wide subject filter).
func (ref ObjectRef) String() string {
	if ref.ID == "" {
		return ref.Type
	}

	return ref.Type + ":" + ref.ID
}

func (ref ObjectRef) validate() error {
	if !objectTypePattern.MatchString(ref.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidObjectType, ref.Type)
	}

	if !objectIDPattern.MatchString(ref.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidObjectID, ref.ID)
	}

	return nil
}

// RelationshipOperation is one idempotent change to the permission graph.
// Writes carry a full resource#relation@subject triple. Deletes always name
// a concrete resource; relation and subject narrow the deletion and may be
// left empty to remove every relationship the resource participates in.
type RelationshipOperation struct {
	Kind     OperationKind
	Resource ObjectRef
	Relation string
	Subject  ObjectRef
}

// WriteRelationship builds an operation that touches resource#relation@subject.
func WriteRelationship(resource ObjectRef, relation string, subject ObjectRef) RelationshipOperation {
	return RelationshipOperation{
		Kind:     OpWriteRelationship,
		Resource: resource,
		Relation: relation,
		Subject:  subject,
	}
}

// DeleteRelationship builds an operation that deletes all relationships
// matching the given resource, relation, and subject. Relation may be empty
// to match any relation; subject may be zero to match any subject, or carry
// only a type to match every subject of that type.
func DeleteRelationship(resource ObjectRef, relation string, subject ObjectRef) RelationshipOperation {
	return RelationshipOperation{
		Kind:     OpDeleteRelationship,
		Resource: resource,
		Relation: relation,
		Subject:  subject,
	}
}

// Validate reports whether the operation is well formed for its kind.
func (op RelationshipOperation) Validate() error {
	switch op.Kind {
	case OpWriteRelationship:
		return op.validateWrite()
	case OpDeleteRelationship:
		return op.validateDelete()
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOperationKind, string(op.Kind))
	}
}

func (op RelationshipOperation) validateWrite() error {
	if err := op.Resource.validate(); err != nil {
		return fmt.Errorf("resource: %w", err)
	}

	if op.Relation == "" {
		return ErrRelationRequired
	}

	if !relationPattern.MatchString(op.Relation) {
		return fmt.Errorf("%w: %q", ErrInvalidRelation, op.Relation)
	}

	if op.Subject == (ObjectRef{}) {
		return ErrSubjectRequired
	}

	if err := op.Subject.validate(); err != nil {
		return fmt.Errorf("subject: %w", err)
	}

	return nil
}

func (op RelationshipOperation) validateDelete() error {
	if err := op.Resource.validate(); err != nil {
		return fmt.Errorf("resource: %w", err)
	}

	if op.Relation != "" && !relationPattern.MatchString(op.Relation) {
		return fmt.Errorf("%w: %q", ErrInvalidRelation, op.Relation)
	}

	if op.Subject == (ObjectRef{}) {
		return nil
	}

	if !objectTypePattern.MatchString(op.Subject.Type) {
		return fmt.Errorf("subject: %w: %q", ErrInvalidObjectType, op.Subject.Type)
	}

	if op.Subject.ID != "" && !objectIDPattern.MatchString(op.Subject.ID) {
		return fmt.Errorf("subject: %w: %q", ErrInvalidObjectID, op.Subject.ID)
	}

	return nil
}

// String renders the operation as resource_type:resource_id#relation@subject,
// omitting the parts a delete leaves unset.
func (op RelationshipOperation) String() string {
	rendered := op.Resource.String()

	if op.Relation != "" {
		rendered += "#" + op.Relation
	}

	if op.Subject != (ObjectRef{}) {
		rendered += "@" + op.Subject.String()
	}

	return rendered
}
