package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/graph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/telemetry"
)

// Staging tables live for one transaction. The seq column preserves batch
// order so the merge can let the last occurrence of a duplicated id win,
// matching what applying the operations one by one would have produced.
const (
	createElementsStagingSQL = `CREATE TEMP TABLE kg_elements_load (
	seq bigint NOT NULL,
	id text NOT NULL,
	properties jsonb NOT NULL
) ON COMMIT DROP`

	createEdgesStagingSQL = `CREATE TEMP TABLE kg_edges_load (
	seq bigint NOT NULL,
	id text NOT NULL,
	source_id text NOT NULL,
	target_id text NOT NULL,
	properties jsonb NOT NULL
) ON COMMIT DROP`

	mergeNodesSQL = `INSERT INTO kg_nodes (graph_name, label, id, properties)
SELECT $1, $2, load.id, load.properties
FROM (
	SELECT DISTINCT ON (id) id, properties
	FROM kg_elements_load
	ORDER BY id, seq DESC
) AS load
ON CONFLICT (graph_name, label, id) DO UPDATE
SET properties = EXCLUDED.properties, updated_at = now()`

	mergeEdgesSQL = `INSERT INTO kg_edges (graph_name, label, id, source_id, target_id, properties)
SELECT $1, $2, load.id, load.source_id, load.target_id, load.properties
FROM (
	SELECT DISTINCT ON (id) id, source_id, target_id, properties
	FROM kg_edges_load
	ORDER BY id, seq DESC
) AS load
ON CONFLICT (graph_name, label, id) DO UPDATE
SET source_id = EXCLUDED.source_id, target_id = EXCLUDED.target_id,
	properties = EXCLUDED.properties, updated_at = now()`

	updateNodesSQL = `UPDATE kg_nodes AS node
SET properties = load.properties, updated_at = now()
FROM (
	SELECT DISTINCT ON (id) id, properties
	FROM kg_elements_load
	ORDER BY id, seq DESC
) AS load
WHERE node.graph_name = $1 AND node.label = $2 AND node.id = load.id`

	updateEdgesSQL = `UPDATE kg_edges AS edge
SET properties = load.properties, updated_at = now()
FROM (
	SELECT DISTINCT ON (id) id, properties
	FROM kg_elements_load
	ORDER BY id, seq DESC
) AS load
WHERE edge.graph_name = $1 AND edge.label = $2 AND edge.id = load.id`
)

// CopyMergeStrategy loads creates and updates by staging rows with the COPY
// protocol into a transaction-scoped temp table, then merging them into the
// element tables in one statement. Deletes and label definitions take
// direct SQL; everything runs inside one transaction per batch.
type CopyMergeStrategy struct {
	db Beginner
}

var _ graph.BulkLoadingStrategy = (*CopyMergeStrategy)(nil)

// NewCopyMergeStrategy creates a copy-merge strategy over db.
func NewCopyMergeStrategy(db Beginner) (*CopyMergeStrategy, error) {
	if nilcheck.Interface(db) {
		return nil, ErrDatabaseRequired
	}

	return &CopyMergeStrategy{db: db}, nil
}

// Name identifies the strategy in probes and logs.
func (strategy *CopyMergeStrategy) Name() string { return "copy_merge" }

// LoadBatch applies one batch inside one transaction. On error the
// transaction rolls back and nothing from the batch remains applied.
func (strategy *CopyMergeStrategy) LoadBatch(ctx context.Context, graphName string, batch []graph.MutationOperation) (graph.MutationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if strategy == nil || strategy.db == nil {
		return graph.MutationResult{}, ErrStrategyNotInitialized
	}

	if strings.TrimSpace(graphName) == "" {
		return graph.MutationResult{}, graph.ErrGraphNameRequired
	}

	if len(batch) == 0 {
		return graph.MutationResult{Success: true}, nil
	}

	if err := validateBatch(batch); err != nil {
		return graph.MutationResult{}, err
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.copy_merge_load")
	defer span.End()

	tx, err := strategy.db.Begin(ctx)
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to begin load transaction", err)

		return graph.MutationResult{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if err := strategy.loadBatchTx(ctx, tx, graphName, batch); err != nil {
		telemetry.HandleSpanError(&span, "failed to load mutation batch", err)

		return graph.MutationResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		err = fmt.Errorf("committing %s batch: %w", batch[0].BatchKey(), err)
		telemetry.HandleSpanError(&span, "failed to commit load transaction", err)

		return graph.MutationResult{}, err
	}

	return graph.MutationResult{Success: true, Count: len(batch)}, nil
}

func (strategy *CopyMergeStrategy) loadBatchTx(ctx context.Context, tx pgx.Tx, graphName string, batch []graph.MutationOperation) error {
	label := batch[0].Label

	switch batch[0].Kind {
	case graph.OpDefineNodeLabel:
		return defineLabel(ctx, tx, graphName, labelKindNode, label)
	case graph.OpDefineEdgeLabel:
		return defineLabel(ctx, tx, graphName, labelKindEdge, label)
	case graph.OpCreateNode:
		return copyMergeElements(ctx, tx, graphName, batch, mergeNodesSQL)
	case graph.OpUpdateNode:
		return copyMergeElements(ctx, tx, graphName, batch, updateNodesSQL)
	case graph.OpDeleteNode:
		return deleteElements(ctx, tx, graphName, batch, deleteNodesSQL)
	case graph.OpCreateEdge:
		return copyMergeEdges(ctx, tx, graphName, batch)
	case graph.OpUpdateEdge:
		return copyMergeElements(ctx, tx, graphName, batch, updateEdgesSQL)
	case graph.OpDeleteEdge:
		return deleteElements(ctx, tx, graphName, batch, deleteEdgesSQL)
	default:
		return fmt.Errorf("%w: %q", graph.ErrInvalidOperationKind, batch[0].Kind)
	}
}

// defineLabel records one label claim. A batch of defines shares one batch
// key, so a single statement covers all of its operations.
func defineLabel(ctx context.Context, tx pgx.Tx, graphName, kind, label string) error {
	if _, err := tx.Exec(ctx, defineLabelSQL, graphName, kind, label); err != nil {
		return fmt.Errorf("defining %s label %s: %w", kind, label, err)
	}

	return nil
}

func copyMergeElements(ctx context.Context, tx pgx.Tx, graphName string, batch []graph.MutationOperation, mergeSQL string) error {
	if _, err := tx.Exec(ctx, createElementsStagingSQL); err != nil {
		return fmt.Errorf("creating staging table: %w", err)
	}

	rows := make([][]any, 0, len(batch))

	for i, op := range batch {
		properties, err := propertiesJSON(op.Properties)
		if err != nil {
			return fmt.Errorf("encoding properties of operation %d: %w", i, err)
		}

		rows = append(rows, []any{int64(i), op.ID, properties})
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"kg_elements_load"},
		[]string{"seq", "id", "properties"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("staging %d rows: %w", len(rows), err)
	}

	if _, err := tx.Exec(ctx, mergeSQL, graphName, batch[0].Label); err != nil {
		return fmt.Errorf("merging %s batch: %w", batch[0].BatchKey(), err)
	}

	return nil
}

func copyMergeEdges(ctx context.Context, tx pgx.Tx, graphName string, batch []graph.MutationOperation) error {
	if _, err := tx.Exec(ctx, createEdgesStagingSQL); err != nil {
		return fmt.Errorf("creating staging table: %w", err)
	}

	rows := make([][]any, 0, len(batch))

	for i, op := range batch {
		properties, err := propertiesJSON(op.Properties)
		if err != nil {
			return fmt.Errorf("encoding properties of operation %d: %w", i, err)
		}

		rows = append(rows, []any{int64(i), op.ID, op.SourceID, op.TargetID, properties})
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"kg_edges_load"},
		[]string{"seq", "id", "source_id", "target_id", "properties"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("staging %d rows: %w", len(rows), err)
	}

	if _, err := tx.Exec(ctx, mergeEdgesSQL, graphName, batch[0].Label); err != nil {
		return fmt.Errorf("merging %s batch: %w", batch[0].BatchKey(), err)
	}

	return nil
}

// deleteElements removes a batch of elements by id. Ids already absent are
// not an error: deletes converge.
func deleteElements(ctx context.Context, tx pgx.Tx, graphName string, batch []graph.MutationOperation, deleteSQL string) error {
	if _, err := tx.Exec(ctx, deleteSQL, graphName, batch[0].Label, elementIDs(batch)); err != nil {
		return fmt.Errorf("deleting %s batch: %w", batch[0].BatchKey(), err)
	}

	return nil
}
