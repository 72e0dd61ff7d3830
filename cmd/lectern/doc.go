// Package main hosts the lectern CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, wires the OpenAI and
// ffmpeg adapters into the pipeline runner, and renders results for the
// terminal. Batch commands (ingest, transcribe, frames, index) take the
// workspace job lock; search and status only read the live generation.
//
// Keep this package lean: behaviour belongs in internal packages and is only
// surfaced here through commands and flags.
package main
