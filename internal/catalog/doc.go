// Package catalog builds the authoritative map of generation endpoints.
//
// Provider documents are editable TOML files merged with built-in defaults.
// Each provider contributes statically declared models, operator-registered
// user models, and optionally a raw model feed translated by a provider
// adapter. Every source passes through the schema normalizer so the
// presentation layer always sees one canonical parameter shape regardless of
// provider quirks.
//
// Rebuilds are memoized and the key-to-endpoint map is swapped atomically;
// readers never observe a partially merged catalog.
package catalog
