// Package config loads, normalizes, and validates lectern configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the OPENAI_API_KEY environment
// fallback. Derived directories (screenshots, RAG generations, scratch space,
// logs) default to children of the output directory so a single setting
// relocates every artifact.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
