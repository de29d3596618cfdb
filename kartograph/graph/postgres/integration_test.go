//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/graph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func integrationDSN(t *testing.T) string {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("KARTOGRAPH_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("KARTOGRAPH_POSTGRES_DSN not set")
	}

	return dsn
}

func integrationDatabaseName() string {
	name := strings.TrimSpace(os.Getenv("KARTOGRAPH_POSTGRES_DB"))
	if name == "" {
		return "postgres"
	}

	return name
}

func setupGraphStore(t *testing.T) (context.Context, *Client) {
	t.Helper()

	dsn := integrationDSN(t)
	ctx := context.Background()

	migrator, err := NewMigrator(dsn, integrationDatabaseName(), log.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up(ctx))

	client, err := New(Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.Ping(ctx))

	return ctx, client
}

// registerGraph ensures a uniquely named graph and removes it afterwards;
// the registry cascade cleans the labels and elements with it.
func registerGraph(t *testing.T, ctx context.Context, client *Client) string {
	t.Helper()

	name := "it-" + uuid.NewString()
	require.NoError(t, client.EnsureGraph(ctx, name))

	t.Cleanup(func() {
		pool, err := client.Pool(ctx)
		if err != nil {
			return
		}

		_, _ = pool.Exec(ctx, `DELETE FROM kg_graphs WHERE name = $1`, name)
	})

	return name
}

func countRows(t *testing.T, ctx context.Context, client *Client, table, graphName string) int {
	t.Helper()

	pool, err := client.Pool(ctx)
	require.NoError(t, err)

	var count int

	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE graph_name = $1`, table)
	require.NoError(t, pool.QueryRow(ctx, query, graphName).Scan(&count))

	return count
}

func nodeProperties(t *testing.T, ctx context.Context, client *Client, graphName, label, id string) []byte {
	t.Helper()

	pool, err := client.Pool(ctx)
	require.NoError(t, err)

	var raw []byte

	err = pool.QueryRow(ctx,
		`SELECT properties FROM kg_nodes WHERE graph_name = $1 AND label = $2 AND id = $3`,
		graphName, label, id,
	).Scan(&raw)
	require.NoError(t, err)

	return raw
}

func TestIntegrationEnsureGraphIdempotent(t *testing.T) {
	ctx, client := setupGraphStore(t)
	name := registerGraph(t, ctx, client)

	require.NoError(t, client.EnsureGraph(ctx, name))

	pool, err := client.Pool(ctx)
	require.NoError(t, err)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM kg_graphs WHERE name = $1`, name).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIntegrationCopyMergeRoundTrip(t *testing.T) {
	ctx, client := setupGraphStore(t)
	name := registerGraph(t, ctx, client)

	strategy, err := NewCopyMergeStrategy(client)
	require.NoError(t, err)

	defines := []graph.MutationOperation{graph.DefineNodeLabel("person")}
	result, err := strategy.LoadBatch(ctx, name, defines)
	require.NoError(t, err)
	assert.Equal(t, graph.MutationResult{Success: true, Count: 1}, result)

	creates := []graph.MutationOperation{
		graph.CreateNode("person", "a", map[string]any{"name": "Ada"}),
		graph.CreateNode("person", "b", map[string]any{"name": "Bob"}),
	}
	result, err = strategy.LoadBatch(ctx, name, creates)
	require.NoError(t, err)
	assert.Equal(t, graph.MutationResult{Success: true, Count: 2}, result)
	assert.Equal(t, 2, countRows(t, ctx, client, "kg_nodes", name))
	assert.JSONEq(t, `{"name":"Ada"}`, string(nodeProperties(t, ctx, client, name, "person", "a")))

	// Re-creating an existing node replaces its properties, not the row.
	result, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{
		graph.CreateNode("person", "a", map[string]any{"name": "Ada", "age": 42}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, ctx, client, "kg_nodes", name))
	assert.JSONEq(t, `{"name":"Ada","age":42}`, string(nodeProperties(t, ctx, client, name, "person", "a")))

	_, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{
		graph.UpdateNode("person", "a", map[string]any{"name": "Ada Lovelace"}),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada Lovelace"}`, string(nodeProperties(t, ctx, client, name, "person", "a")))

	_, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{graph.DefineEdgeLabel("knows")})
	require.NoError(t, err)

	_, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{
		graph.CreateEdge("knows", "e1", "a", "b", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, ctx, client, "kg_edges", name))

	_, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{
		graph.DeleteEdge("knows", "e1"),
		graph.DeleteEdge("knows", "never-existed"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, countRows(t, ctx, client, "kg_edges", name))

	_, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{graph.DeleteNode("person", "b")})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, ctx, client, "kg_nodes", name))
}

func TestIntegrationCopyMergeDuplicateIDLastWins(t *testing.T) {
	ctx, client := setupGraphStore(t)
	name := registerGraph(t, ctx, client)

	strategy, err := NewCopyMergeStrategy(client)
	require.NoError(t, err)

	batch := []graph.MutationOperation{
		graph.CreateNode("person", "a", map[string]any{"rev": 1}),
		graph.CreateNode("person", "a", map[string]any{"rev": 2}),
	}

	result, err := strategy.LoadBatch(ctx, name, batch)
	require.NoError(t, err)
	assert.Equal(t, graph.MutationResult{Success: true, Count: 2}, result)

	assert.Equal(t, 1, countRows(t, ctx, client, "kg_nodes", name))
	assert.JSONEq(t, `{"rev":2}`, string(nodeProperties(t, ctx, client, name, "person", "a")))
}

func TestIntegrationBatchUpsertRoundTrip(t *testing.T) {
	ctx, client := setupGraphStore(t)
	name := registerGraph(t, ctx, client)

	strategy, err := NewBatchUpsertStrategy(client)
	require.NoError(t, err)

	result, err := strategy.LoadBatch(ctx, name, []graph.MutationOperation{
		graph.CreateNode("person", "a", map[string]any{"rev": 1}),
		graph.CreateNode("person", "a", map[string]any{"rev": 2}),
		graph.CreateNode("person", "b", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, graph.MutationResult{Success: true, Count: 3}, result)
	assert.Equal(t, 2, countRows(t, ctx, client, "kg_nodes", name))
	assert.JSONEq(t, `{"rev":2}`, string(nodeProperties(t, ctx, client, name, "person", "a")))

	// Updating a missing element is a no-op, not an error.
	result, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{
		graph.UpdateNode("person", "missing", map[string]any{"x": 1}),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{
		graph.CreateEdge("knows", "e1", "a", "b", map[string]any{"since": 2020}),
	})
	require.NoError(t, err)

	_, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{
		graph.UpdateEdge("knows", "e1", map[string]any{"since": 2021}),
	})
	require.NoError(t, err)

	pool, err := client.Pool(ctx)
	require.NoError(t, err)

	var raw []byte
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT properties FROM kg_edges WHERE graph_name = $1 AND id = $2`, name, "e1",
	).Scan(&raw))
	assert.JSONEq(t, `{"since":2021}`, string(raw))
}

func TestIntegrationBatchFailureLeavesNothingApplied(t *testing.T) {
	ctx, client := setupGraphStore(t)

	// Never registered, so the merge violates the registry foreign key.
	name := "it-" + uuid.NewString()

	strategy, err := NewCopyMergeStrategy(client)
	require.NoError(t, err)

	_, err = strategy.LoadBatch(ctx, name, []graph.MutationOperation{
		graph.CreateNode("person", "a", nil),
		graph.CreateNode("person", "b", nil),
	})
	require.Error(t, err)

	assert.Equal(t, 0, countRows(t, ctx, client, "kg_nodes", name))
}

func TestIntegrationApplierAgainstStore(t *testing.T) {
	ctx, client := setupGraphStore(t)
	name := registerGraph(t, ctx, client)

	strategy, err := NewCopyMergeStrategy(client)
	require.NoError(t, err)

	applier, err := graph.NewApplier(strategy)
	require.NoError(t, err)

	ops := []graph.MutationOperation{
		graph.DefineNodeLabel("person"),
		graph.CreateNode("person", "a", map[string]any{"name": "Ada"}),
		graph.CreateNode("person", "b", map[string]any{"name": "Bob"}),
		graph.DeleteNode("person", "a"),
	}

	result, err := applier.ApplyBatch(ctx, ops, name)
	require.NoError(t, err)
	assert.Equal(t, graph.MutationResult{Success: true, Count: 4}, result)

	assert.Equal(t, 1, countRows(t, ctx, client, "kg_nodes", name))
	assert.Equal(t, 1, countRows(t, ctx, client, "kg_labels", name))
}
