package graph

import "context"

// BulkLoadingStrategy applies one batch of same-key operations to a named
// graph. Strategies trade round trips for staging cost differently; the
// Applier is indifferent as long as every applied operation is counted.
type BulkLoadingStrategy interface {
	// Name identifies the strategy in probes and logs.
	Name() string

	// LoadBatch applies one batch. Implementations may reorder operations
	// within the batch. On error nothing from the batch may remain applied;
	// the platform's strategies run each batch in one transaction.
	LoadBatch(ctx context.Context, graphName string, batch []MutationOperation) (MutationResult, error)
}
