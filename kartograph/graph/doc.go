// Package graph batches ordered mutation operations and applies them to a
// graph store through a pluggable bulk-loading strategy.
//
// GroupBatches splits an operation sequence into contiguous runs sharing a
// kind+label key, preserving the order between runs: a label definition
// stays ahead of the creates that need it. The Applier feeds each batch to
// its strategy and fails fast — a batch error aborts everything after it and
// surfaces a BatchError saying how much was applied. Retrying is the
// caller's business, not this layer's.
package graph
