package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrStrategyRequired indicates a nil strategy passed to NewApplier.
	ErrStrategyRequired = errors.New("bulk loading strategy is required")

	// ErrApplierNotInitialized indicates an Applier not built by NewApplier.
	ErrApplierNotInitialized = errors.New("graph applier not initialized")

	// ErrGraphNameRequired indicates a blank graph name.
	ErrGraphNameRequired = errors.New("graph name is required")

	// ErrInvalidOperationKind indicates a mutation whose kind is not part of
	// the operation union.
	ErrInvalidOperationKind = errors.New("invalid mutation operation kind")

	// ErrInvalidLabel indicates a label outside the graph label grammar.
	ErrInvalidLabel = errors.New("invalid graph label")

	// ErrIDRequired indicates a node or edge mutation without an element id.
	ErrIDRequired = errors.New("element id is required")

	// ErrSourceIDRequired indicates an edge creation without a source node.
	ErrSourceIDRequired = errors.New("edge source id is required")

	// ErrTargetIDRequired indicates an edge creation without a target node.
	ErrTargetIDRequired = errors.New("edge target id is required")
)

// BatchError reports the batch that broke an apply: its index in grouping
// order, how many operations earlier batches had applied, and the cause.
type BatchError struct {
	BatchIndex int
	Applied    int
	Err        error
}

func (err *BatchError) Error() string {
	return fmt.Sprintf("applying batch %d after %d applied operations: %v", err.BatchIndex, err.Applied, err.Err)
}

func (err *BatchError) Unwrap() error { return err.Err }
