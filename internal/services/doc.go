// Package services defines shared utilities consumed by the pipeline stages
// and the external capability adapters.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and media identifiers
//     for logging.
//   - Structured error markers plus the Wrap helper so callers can tell a
//     missing index from a failed capability call with errors.Is.
//
// Use these helpers when wiring new stage logic so failure classification
// stays uniform across the pipeline.
package services
