package projection

import "errors"

var (
	// ErrNoTranslator indicates an event type no registered translator claims.
	// The worker treats it as a processing error, so the entry retries and
	// eventually dead-letters instead of crashing the relay.
	ErrNoTranslator = errors.New("no translator for event type")

	// ErrTranslatorRequired indicates a nil translator passed to NewRegistry.
	ErrTranslatorRequired = errors.New("translator is required")

	// ErrTranslatorAlreadyRegistered indicates two translators claiming one
	// event type.
	ErrTranslatorAlreadyRegistered = errors.New("event type already claimed by another translator")

	// ErrEventTypeRequired indicates a translator advertising a blank event type.
	ErrEventTypeRequired = errors.New("translator event type is required")

	// ErrUnexpectedEvent indicates a decoded event whose Go type does not match
	// the translator claiming its event type; the codec and registry disagree.
	ErrUnexpectedEvent = errors.New("unexpected event type for translator")

	// ErrCodecRequired indicates a nil codec passed to NewProjector.
	ErrCodecRequired = errors.New("codec is required")

	// ErrRegistryRequired indicates a nil registry passed to NewProjector.
	ErrRegistryRequired = errors.New("registry is required")

	// ErrApplierRequired indicates a nil applier passed to NewProjector.
	ErrApplierRequired = errors.New("applier is required")

	// ErrProjectorNotInitialized indicates a Projector not built by NewProjector.
	ErrProjectorNotInitialized = errors.New("projector not initialized")
)
