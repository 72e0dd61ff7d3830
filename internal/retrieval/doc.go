// Package retrieval answers free-text queries against the live generation.
//
// The engine follows the CURRENT pointer written by ingestion, caches the
// loaded index and metadata store by build id, and reloads when the pointer
// moves. A generation whose index and store disagree on build id, or that
// was embedded with a different model than the query encoder, is reported as
// not ready rather than searched.
package retrieval
