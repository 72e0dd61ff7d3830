// Package openai talks to OpenAI-compatible speech-to-text and embedding
// endpoints.
//
// Client.Transcribe uploads one audio file to /audio/transcriptions with the
// diarized JSON response format and maps the reply to transcript segments.
// Client.EmbedBatch posts texts to /embeddings and returns vectors in input
// order. Only HTTP 429 responses are retried; timeouts, transport failures,
// and server errors are returned to the caller at once so the pipeline can
// skip the affected clip or abort the run.
package openai
