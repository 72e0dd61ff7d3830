// Package pipeline orchestrates the batch stages for one workspace.
//
// A Runner owns the single-job lock, turns discovered media into time index
// rows and markdown transcripts, attaches frames, and builds the searchable
// generation. Progress is pushed to an Observer as JobState values rather
// than held in shared state. Per-asset failures are logged and skipped; only
// a run that produces nothing, or a failing whole-table stage, returns an
// error.
package pipeline
