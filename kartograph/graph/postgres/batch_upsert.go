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

const (
	upsertNodeSQL = `INSERT INTO kg_nodes (graph_name, label, id, properties) VALUES ($1, $2, $3, $4)
ON CONFLICT (graph_name, label, id) DO UPDATE
SET properties = EXCLUDED.properties, updated_at = now()`

	upsertEdgeSQL = `INSERT INTO kg_edges (graph_name, label, id, source_id, target_id, properties) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (graph_name, label, id) DO UPDATE
SET source_id = EXCLUDED.source_id, target_id = EXCLUDED.target_id,
	properties = EXCLUDED.properties, updated_at = now()`

	updateNodeSQL = `UPDATE kg_nodes SET properties = $4, updated_at = now()
WHERE graph_name = $1 AND label = $2 AND id = $3`

	updateEdgeSQL = `UPDATE kg_edges SET properties = $4, updated_at = now()
WHERE graph_name = $1 AND label = $2 AND id = $3`

	deleteNodeSQL = `DELETE FROM kg_nodes WHERE graph_name = $1 AND label = $2 AND id = $3`

	deleteEdgeSQL = `DELETE FROM kg_edges WHERE graph_name = $1 AND label = $2 AND id = $3`
)

// BatchUpsertStrategy pipelines one statement per operation through a pgx
// batch: one network round trip per mutation batch, one transaction around
// it. Statements run in batch order, so a duplicated id resolves exactly as
// sequential application would.
type BatchUpsertStrategy struct {
	db Beginner
}

var _ graph.BulkLoadingStrategy = (*BatchUpsertStrategy)(nil)

// NewBatchUpsertStrategy creates a batch-upsert strategy over db.
func NewBatchUpsertStrategy(db Beginner) (*BatchUpsertStrategy, error) {
	if nilcheck.Interface(db) {
		return nil, ErrDatabaseRequired
	}

	return &BatchUpsertStrategy{db: db}, nil
}

// Name identifies the strategy in probes and logs.
func (strategy *BatchUpsertStrategy) Name() string { return "batch_upsert" }

// LoadBatch applies one batch inside one transaction. On error the
// transaction rolls back and nothing from the batch remains applied.
func (strategy *BatchUpsertStrategy) LoadBatch(ctx context.Context, graphName string, batch []graph.MutationOperation) (graph.MutationResult, error) {
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

	queued, err := queueBatch(graphName, batch)
	if err != nil {
		return graph.MutationResult{}, err
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.batch_upsert_load")
	defer span.End()

	tx, err := strategy.db.Begin(ctx)
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to begin load transaction", err)

		return graph.MutationResult{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if err := sendBatch(ctx, tx, queued); err != nil {
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

func queueBatch(graphName string, batch []graph.MutationOperation) (*pgx.Batch, error) {
	queued := &pgx.Batch{}

	for i, op := range batch {
		properties, err := propertiesJSON(op.Properties)
		if err != nil {
			return nil, fmt.Errorf("encoding properties of operation %d: %w", i, err)
		}

		switch op.Kind {
		case graph.OpDefineNodeLabel:
			queued.Queue(defineLabelSQL, graphName, labelKindNode, op.Label)
		case graph.OpDefineEdgeLabel:
			queued.Queue(defineLabelSQL, graphName, labelKindEdge, op.Label)
		case graph.OpCreateNode:
			queued.Queue(upsertNodeSQL, graphName, op.Label, op.ID, properties)
		case graph.OpUpdateNode:
			queued.Queue(updateNodeSQL, graphName, op.Label, op.ID, properties)
		case graph.OpDeleteNode:
			queued.Queue(deleteNodeSQL, graphName, op.Label, op.ID)
		case graph.OpCreateEdge:
			queued.Queue(upsertEdgeSQL, graphName, op.Label, op.ID, op.SourceID, op.TargetID, properties)
		case graph.OpUpdateEdge:
			queued.Queue(updateEdgeSQL, graphName, op.Label, op.ID, properties)
		case graph.OpDeleteEdge:
			queued.Queue(deleteEdgeSQL, graphName, op.Label, op.ID)
		default:
			return nil, fmt.Errorf("%w: %q", graph.ErrInvalidOperationKind, op.Kind)
		}
	}

	return queued, nil
}

// sendBatch runs the queued statements in one round trip and surfaces the
// first failure. Results must be drained and closed before the enclosing
// transaction can commit.
func sendBatch(ctx context.Context, tx pgx.Tx, queued *pgx.Batch) error {
	results := tx.SendBatch(ctx, queued)

	var execErr error

	for i := 0; i < queued.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			execErr = fmt.Errorf("executing batched statement %d: %w", i, err)

			break
		}
	}

	if err := results.Close(); err != nil && execErr == nil {
		execErr = fmt.Errorf("closing batch results: %w", err)
	}

	return execErr
}
