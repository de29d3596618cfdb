package projection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/spicedb"
)

// Translator maps the decoded events of one bounded context to relationship
// operations. Translate must be pure: no I/O, no retained state, so a retried
// entry always translates to the same operations.
type Translator interface {
	// EventTypes lists the event-type discriminators this translator claims.
	EventTypes() []string

	// Translate converts one decoded event into zero or more operations.
	Translate(ctx context.Context, event outbox.Event) ([]spicedb.RelationshipOperation, error)
}

// Registry dispatches decoded events to the translator claiming their type.
type Registry struct {
	translators map[string]Translator
}

// NewRegistry indexes translators by the event types they claim. Two
// translators claiming one type is a configuration error, surfaced here
// rather than silently resolved by registration order.
func NewRegistry(translators ...Translator) (*Registry, error) {
	registry := &Registry{translators: make(map[string]Translator)}

	for _, translator := range translators {
		if nilcheck.Interface(translator) {
			return nil, ErrTranslatorRequired
		}

		for _, eventType := range translator.EventTypes() {
			normalized := strings.TrimSpace(eventType)
			if normalized == "" {
				return nil, fmt.Errorf("%w: %T", ErrEventTypeRequired, translator)
			}

			if _, exists := registry.translators[normalized]; exists {
				return nil, fmt.Errorf("%w: %s", ErrTranslatorAlreadyRegistered, normalized)
			}

			registry.translators[normalized] = translator
		}
	}

	return registry, nil
}

// Translate dispatches the event to the translator claiming eventType.
func (registry *Registry) Translate(ctx context.Context, eventType string, event outbox.Event) ([]spicedb.RelationshipOperation, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTranslator, eventType)
	}

	translator, ok := registry.translators[strings.TrimSpace(eventType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTranslator, eventType)
	}

	ops, err := translator.Translate(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("translating %s: %w", eventType, err)
	}

	return ops, nil
}

// EventTypes returns the claimed event types in lexical order.
func (registry *Registry) EventTypes() []string {
	if registry == nil {
		return nil
	}

	eventTypes := make([]string, 0, len(registry.translators))
	for eventType := range registry.translators {
		eventTypes = append(eventTypes, eventType)
	}

	sort.Strings(eventTypes)

	return eventTypes
}
