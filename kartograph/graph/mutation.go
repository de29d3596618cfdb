package graph

import (
	"fmt"
	"regexp"
)

// OperationKind discriminates the mutation operation union.
type OperationKind string

const (
	OpDefineNodeLabel OperationKind = "define_node_label"
	OpDefineEdgeLabel OperationKind = "define_edge_label"
	OpCreateNode      OperationKind = "create_node"
	OpUpdateNode      OperationKind = "update_node"
	OpDeleteNode      OperationKind = "delete_node"
	OpCreateEdge      OperationKind = "create_edge"
	OpUpdateEdge      OperationKind = "update_edge"
	OpDeleteEdge      OperationKind = "delete_edge"
)

// Labels name entity and relation types ("person", "works_at"). Element ids
// are opaque and not validated beyond presence.
var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// MutationOperation is one change to a graph: a label definition, or a
// create/update/delete of a node or edge. SourceID and TargetID are only
// meaningful on edge creation; Properties ride along on creates and updates.
type MutationOperation struct {
	Kind       OperationKind
	Label      string
	ID         string
	SourceID   string
	TargetID   string
	Properties map[string]any
}

// DefineNodeLabel declares a node label before its first use.
func DefineNodeLabel(label string) MutationOperation {
	return MutationOperation{Kind: OpDefineNodeLabel, Label: label}
}

// DefineEdgeLabel declares an edge label before its first use.
func DefineEdgeLabel(label string) MutationOperation {
	return MutationOperation{Kind: OpDefineEdgeLabel, Label: label}
}

// CreateNode builds a node insertion.
func CreateNode(label, id string, properties map[string]any) MutationOperation {
	return MutationOperation{Kind: OpCreateNode, Label: label, ID: id, Properties: properties}
}

// UpdateNode builds a node property update.
func UpdateNode(label, id string, properties map[string]any) MutationOperation {
	return MutationOperation{Kind: OpUpdateNode, Label: label, ID: id, Properties: properties}
}

// DeleteNode builds a node removal.
func DeleteNode(label, id string) MutationOperation {
	return MutationOperation{Kind: OpDeleteNode, Label: label, ID: id}
}

// CreateEdge builds an edge insertion between two nodes.
func CreateEdge(label, id, sourceID, targetID string, properties map[string]any) MutationOperation {
	return MutationOperation{
		Kind:       OpCreateEdge,
		Label:      label,
		ID:         id,
		SourceID:   sourceID,
		TargetID:   targetID,
		Properties: properties,
	}
}

// UpdateEdge builds an edge property update.
func UpdateEdge(label, id string, properties map[string]any) MutationOperation {
	return MutationOperation{Kind: OpUpdateEdge, Label: label, ID: id, Properties: properties}
}

// DeleteEdge builds an edge removal.
func DeleteEdge(label, id string) MutationOperation {
	return MutationOperation{Kind: OpDeleteEdge, Label: label, ID: id}
}

// BatchKey groups operations that one bulk statement can absorb: same kind,
// same label.
func (op MutationOperation) BatchKey() string {
	return string(op.Kind) + "/" + op.Label
}

// Validate reports whether the operation carries what its kind needs.
func (op MutationOperation) Validate() error {
	switch op.Kind {
	case OpDefineNodeLabel, OpDefineEdgeLabel:
		return op.validateLabel()
	case OpCreateNode, OpUpdateNode, OpDeleteNode, OpUpdateEdge, OpDeleteEdge:
		if err := op.validateLabel(); err != nil {
			return err
		}

		if op.ID == "" {
			return fmt.Errorf("%s: %w", op.Kind, ErrIDRequired)
		}

		return nil
	case OpCreateEdge:
		if err := op.validateLabel(); err != nil {
			return err
		}

		if op.ID == "" {
			return fmt.Errorf("%s: %w", op.Kind, ErrIDRequired)
		}

		if op.SourceID == "" {
			return ErrSourceIDRequired
		}

		if op.TargetID == "" {
			return ErrTargetIDRequired
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOperationKind, string(op.Kind))
	}
}

func (op MutationOperation) validateLabel() error {
	if !labelPattern.MatchString(op.Label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, op.Label)
	}

	return nil
}
