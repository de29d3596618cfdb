//go:build unit

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupBatchesEmpty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, GroupBatches(nil))
	assert.Nil(t, GroupBatches([]MutationOperation{}))
}

func TestGroupBatchesContiguousRuns(t *testing.T) {
	t.Parallel()

	ops := []MutationOperation{
		CreateNode("person", "a", nil),
		CreateNode("person", "b", nil),
		CreateEdge("works_at", "e1", "a", "b", nil),
		CreateNode("person", "c", nil),
	}

	batches := GroupBatches(ops)

	require.Len(t, batches, 3)
	assert.Equal(t, ops[0:2], batches[0])
	assert.Equal(t, ops[2:3], batches[1])
	assert.Equal(t, ops[3:4], batches[2])
}

func TestGroupBatchesSplitsOnKindChange(t *testing.T) {
	t.Parallel()

	ops := []MutationOperation{
		CreateNode("person", "a", nil),
		UpdateNode("person", "a", map[string]any{"age": 42}),
		DeleteNode("person", "a"),
	}

	batches := GroupBatches(ops)

	require.Len(t, batches, 3)

	for i, batch := range batches {
		require.Len(t, batch, 1)
		assert.Equal(t, ops[i], batch[0])
	}
}

func TestGroupBatchesKeepsDefinitionAhead(t *testing.T) {
	t.Parallel()

	ops := []MutationOperation{
		DefineNodeLabel("person"),
		CreateNode("person", "a", nil),
		CreateNode("person", "b", nil),
	}

	batches := GroupBatches(ops)

	require.Len(t, batches, 2)
	assert.Equal(t, OpDefineNodeLabel, batches[0][0].Kind)
	require.Len(t, batches[1], 2)
	assert.Equal(t, OpCreateNode, batches[1][0].Kind)
}

func TestGroupBatchesSingleRun(t *testing.T) {
	t.Parallel()

	ops := []MutationOperation{
		CreateNode("person", "a", nil),
		CreateNode("person", "b", nil),
		CreateNode("person", "c", nil),
	}

	batches := GroupBatches(ops)

	require.Len(t, batches, 1)
	assert.Equal(t, ops, batches[0])
}

func TestGroupBatchesAppendDoesNotClobberInput(t *testing.T) {
	t.Parallel()

	ops := []MutationOperation{
		CreateNode("person", "a", nil),
		CreateNode("company", "b", nil),
	}

	batches := GroupBatches(ops)
	require.Len(t, batches, 2)

	// Batches are capped views of the input, so growing one must not
	// overwrite the operation that starts the next run.
	grown := append(batches[0], DeleteNode("person", "a"))

	assert.Equal(t, "b", ops[1].ID)
	assert.Equal(t, OpCreateNode, ops[1].Kind)
	require.Len(t, grown, 2)
}
