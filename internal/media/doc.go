// Package media holds the low-level artifact utilities the ingestion
// pipeline leans on: ffprobe inspection, image decoding and downscaling,
// video frame extraction, and MIME/extension mapping.
package media
