package graph

// GroupBatches splits operations into contiguous runs sharing a BatchKey.
// Order between runs follows the input exactly, so a definition stays ahead
// of the creates that rely on it; only operations inside one run may be
// reordered by a strategy. Two runs with the same key separated by other
// operations stay separate batches. The returned batches alias the input
// slice.
func GroupBatches(ops []MutationOperation) [][]MutationOperation {
	if len(ops) == 0 {
		return nil
	}

	batches := make([][]MutationOperation, 0, len(ops))
	start := 0

	for i := 1; i <= len(ops); i++ {
		if i == len(ops) || ops[i].BatchKey() != ops[start].BatchKey() {
			batches = append(batches, ops[start:i:i])
			start = i
		}
	}

	return batches
}
