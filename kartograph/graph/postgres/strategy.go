package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/graph"
)

var (
	// ErrDatabaseRequired indicates a nil database handle passed to a
	// strategy constructor.
	ErrDatabaseRequired = errors.New("graph database handle is required")

	// ErrStrategyNotInitialized indicates a strategy not built by its
	// constructor.
	ErrStrategyNotInitialized = errors.New("graph strategy not initialized")

	// ErrMixedBatch indicates a batch whose operations do not share one
	// kind and label. GroupBatches never produces one.
	ErrMixedBatch = errors.New("mutation batch mixes operation kinds or labels")
)

// Beginner starts the transactions a strategy runs batches in. *Client and
// *pgxpool.Pool both satisfy it; tests substitute fakes.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Label kinds as stored in kg_labels.
const (
	labelKindNode = "node"
	labelKindEdge = "edge"
)

const (
	defineLabelSQL = `INSERT INTO kg_labels (graph_name, kind, label) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	deleteNodesSQL = `DELETE FROM kg_nodes WHERE graph_name = $1 AND label = $2 AND id = ANY($3)`
	deleteEdgesSQL = `DELETE FROM kg_edges WHERE graph_name = $1 AND label = $2 AND id = ANY($3)`
)

// validateBatch checks every operation and rejects batches that mix batch
// keys. Strategies revalidate because they are public entry points; the
// applier normally did this already.
func validateBatch(batch []graph.MutationOperation) error {
	key := batch[0].BatchKey()

	for i, op := range batch {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("validating operation %d: %w", i, err)
		}

		if op.BatchKey() != key {
			return fmt.Errorf("%w: %s and %s", ErrMixedBatch, key, op.BatchKey())
		}
	}

	return nil
}

// propertiesJSON renders an operation's properties for a jsonb column.
// Absent properties become the empty object, never JSON null.
func propertiesJSON(properties map[string]any) ([]byte, error) {
	if len(properties) == 0 {
		return []byte("{}"), nil
	}

	return json.Marshal(properties)
}

func elementIDs(batch []graph.MutationOperation) []string {
	ids := make([]string, 0, len(batch))
	for _, op := range batch {
		ids = append(ids, op.ID)
	}

	return ids
}
