// Package preflight provides readiness checks for the directories, binaries,
// and remote APIs lectern depends on.
//
// The pipeline runs RunAll before an ingestion job starts so a doomed run is
// rejected before any media is transcribed. The CLI "lectern status" command
// renders the same results.
package preflight
