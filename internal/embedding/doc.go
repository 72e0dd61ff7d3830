// Package embedding wraps the batch embedding capability with the text and
// vector normalisation shared by ingestion and retrieval.
//
// Text is NFC-normalised before it is sent and every returned vector is
// scaled to unit length, so inner-product search over the results ranks by
// cosine similarity. Queries and stored segments go through the same Encoder
// and cannot diverge.
package embedding
