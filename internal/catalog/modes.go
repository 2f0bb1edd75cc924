package catalog

import "strings"

// InferMode resolves a model's capability. An explicitly declared mode always
// wins; otherwise the type hint and model id are scanned for case-insensitive
// markers. "video" implies text-to-video unless "image" also appears, which
// implies image-to-video; "edit" or "image-to-image" implies image-to-image;
// anything else defaults to text-to-image.
func InferMode(explicit Mode, typeHint, modelID string) Mode {
	if explicit != "" {
		return explicit
	}
	text := strings.ToLower(typeHint + " " + modelID)
	switch {
	case strings.Contains(text, "video"):
		if strings.Contains(text, "image") {
			return ModeImageToVideo
		}
		return ModeTextToVideo
	case strings.Contains(text, "image-to-image"), strings.Contains(text, "edit"):
		return ModeImageToImage
	default:
		return ModeTextToImage
	}
}
