// Package ingest moves assets across the pipeline boundary in both
// directions: reference images in (staged thumbnails plus the
// content-addressed reference cache) and finished artifacts out (resolved,
// probed, thumbnailed, and filed into the date-partitioned library).
//
// The reference cache is append-only. A cache entry's path is a pure
// function of the source bytes and the configured pixel bound, so racing
// writers for the same key produce the same file and byte-identical inputs
// never re-derive work across generations.
package ingest
