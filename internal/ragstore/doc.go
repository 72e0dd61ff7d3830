// Package ragstore holds the display metadata for every embedded segment in
// a SQLite database, keyed by vector id.
//
// One database belongs to one ingestion generation. It is written once by
// the indexer, stamped with the build id in build_meta, and afterwards only
// read by retrieval.
package ragstore
