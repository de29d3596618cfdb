// Package postgres implements the platform graph store on PostgreSQL and
// the bulk-loading strategies that write to it.
//
// The store is a multi-graph relational layout: kg_graphs registers graph
// names, kg_labels holds the declared node and edge labels, kg_nodes and
// kg_edges hold the elements, all keyed by graph name. Client manages the
// pgxpool behind it and applies the embedded migrations.
//
// Two graph.BulkLoadingStrategy implementations cover the load paths:
// CopyMergeStrategy stages rows with COPY into a temp table and merges them
// in one statement, BatchUpsertStrategy pipelines per-operation statements
// in a single round trip. Both run each batch in one transaction, so a
// failed batch leaves nothing behind.
package postgres
