// Package ingest builds the searchable generation from the time index.
//
// Each run embeds every row with text, writes a fresh generation directory
// holding the vector index and metadata store under one build id, and then
// swaps the CURRENT pointer to it. Readers only ever follow CURRENT, so a run
// that fails before the swap leaves the previous generation in service.
//
// Layout under the rag directory:
//
//	CURRENT                    build id of the live generation
//	gen-<build id>/transcript.index
//	gen-<build id>/rag.db
package ingest
