// Package vectorindex is an append-only flat index of unit vectors with exact
// inner-product search and a compact on-disk form.
//
// Vector ids are dense and assigned in insertion order. The file records the
// build id of the ingestion run that wrote it so readers can check it against
// the metadata store of the same generation.
package vectorindex
