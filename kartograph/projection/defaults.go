package projection

import "github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"

// DefaultTranslators returns the platform's reference translator set.
func DefaultTranslators() []Translator {
	return []Translator{
		GroupTranslator{},
		WorkspaceTranslator{},
		APIKeyTranslator{},
		TenantTranslator{},
	}
}

// NewDefaultRegistry builds a registry over the reference translators.
func NewDefaultRegistry() (*Registry, error) {
	return NewRegistry(DefaultTranslators()...)
}

// RegisterEvents registers a decoder for every reference event on the codec,
// pairing the translator set with the payload shapes it expects.
func RegisterEvents(codec *outbox.Codec) error {
	if codec == nil {
		return ErrCodecRequired
	}

	if err := outbox.RegisterJSON[GroupCreated](codec, EventTypeGroupCreated); err != nil {
		return err
	}

	if err := outbox.RegisterJSON[GroupDeleted](codec, EventTypeGroupDeleted); err != nil {
		return err
	}

	if err := outbox.RegisterJSON[GroupMemberAdded](codec, EventTypeGroupMemberAdded); err != nil {
		return err
	}

	if err := outbox.RegisterJSON[GroupMemberRemoved](codec, EventTypeGroupMemberRemoved); err != nil {
		return err
	}

	if err := outbox.RegisterJSON[WorkspaceCreated](codec, EventTypeWorkspaceCreated); err != nil {
		return err
	}

	if err := outbox.RegisterJSON[WorkspaceArchived](codec, EventTypeWorkspaceArchived); err != nil {
		return err
	}

	if err := outbox.RegisterJSON[APIKeyIssued](codec, EventTypeAPIKeyIssued); err != nil {
		return err
	}

	if err := outbox.RegisterJSON[APIKeyRevoked](codec, EventTypeAPIKeyRevoked); err != nil {
		return err
	}

	return outbox.RegisterJSON[TenantProvisioned](codec, EventTypeTenantProvisioned)
}
