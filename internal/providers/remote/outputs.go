package remote

import "strings"

// Output is one artifact reference pulled from a provider response.
type Output struct {
	URL  string
	MIME string
}

var outputEnvelopeKeys = []string{"images", "videos", "outputs", "output", "artifacts", "data", "result"}

var outputURLKeys = []string{"url", "image_url", "video_url", "uri", "file_url"}

var outputMIMEKeys = []string{"mime", "mime_type", "content_type"}

// normalizeOutputs flattens the many shapes providers use for artifact
// lists: a bare URL string, an array of strings or objects, or an object
// wrapping one of those under a well-known envelope key.
func normalizeOutputs(node any) []Output {
	switch value := node.(type) {
	case string:
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return []Output{{URL: trimmed}}
		}
		return nil
	case []any:
		var outputs []Output
		for _, entry := range value {
			outputs = append(outputs, normalizeOutputs(entry)...)
		}
		return outputs
	case map[string]any:
		for _, key := range outputURLKeys {
			raw, ok := value[key].(string)
			if !ok || strings.TrimSpace(raw) == "" {
				continue
			}
			output := Output{URL: strings.TrimSpace(raw)}
			for _, mimeKey := range outputMIMEKeys {
				if mime, ok := value[mimeKey].(string); ok && mime != "" {
					output.MIME = mime
					break
				}
			}
			return []Output{output}
		}
		for _, key := range outputEnvelopeKeys {
			inner, ok := value[key]
			if !ok {
				continue
			}
			if outputs := normalizeOutputs(inner); len(outputs) > 0 {
				return outputs
			}
		}
		return nil
	default:
		return nil
	}
}
