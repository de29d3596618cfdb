package graph

// MutationResult reports the outcome of applying mutation operations.
// Count is the number of operations applied; after a failed apply it covers
// the batches that completed before the failure.
type MutationResult struct {
	Success bool
	Count   int
}

// merge folds another batch result in: counts add, success only survives
// when both sides succeeded.
func (result MutationResult) merge(other MutationResult) MutationResult {
	return MutationResult{
		Success: result.Success && other.Success,
		Count:   result.Count + other.Count,
	}
}
