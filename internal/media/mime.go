package media

import (
	"path"
	"strings"
)

var mimeExtensions = map[string]string{
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/jpg":        ".jpg",
	"image/webp":       ".webp",
	"image/gif":        ".gif",
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"video/x-matroska": ".mkv",
}

// ExtensionForMIME maps a MIME type to a file extension, or "" when unknown.
// Parameters after a semicolon are ignored.
func ExtensionForMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mimeExtensions[mime]
}

// ResolveExtension picks an output file extension: MIME type first, then the
// source path's extension, then the output-type default.
func ResolveExtension(mime, sourcePath, fallback string) string {
	if ext := ExtensionForMIME(mime); ext != "" {
		return ext
	}
	if ext := strings.ToLower(path.Ext(sourcePath)); ext != "" && ext != "." {
		// Strip query-ish leftovers from URL paths.
		if idx := strings.IndexAny(ext, "?#"); idx >= 0 {
			ext = ext[:idx]
		}
		if len(ext) > 1 && len(ext) <= 6 {
			return ext
		}
	}
	return fallback
}
