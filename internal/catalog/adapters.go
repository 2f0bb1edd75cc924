package catalog

import (
	"fmt"
	"strings"
)

// ModelSummary is a provider-agnostic view of one upstream model listing.
type ModelSummary struct {
	ID          string
	DisplayName string
	TypeHint    string
	Mode        Mode
}

// Adapter translates a provider's raw model documents into the shapes the
// catalog and the remote search path understand. The registry is closed:
// tags resolve to implementations once at build time, never per call.
type Adapter interface {
	NormalizeSearchResult(raw map[string]any) (ModelSummary, bool)
	NormalizeModelDetail(raw map[string]any) (ModelDef, bool)
}

var adapterRegistry = map[string]Adapter{
	"":        genericAdapter{},
	"generic": genericAdapter{},
	"fal":     falAdapter{},
}

// AdapterFor resolves an adapter tag. Unknown tags fall back to the generic
// adapter; the returned bool reports whether the tag was recognized.
func AdapterFor(tag string) (Adapter, bool) {
	adapter, ok := adapterRegistry[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return genericAdapter{}, false
	}
	return adapter, true
}

// genericAdapter applies id/slug/name heuristics to arbitrary documents.
type genericAdapter struct{}

func (genericAdapter) NormalizeSearchResult(raw map[string]any) (ModelSummary, bool) {
	id := firstString(raw, "id", "slug", "model", "name")
	if id == "" {
		return ModelSummary{}, false
	}
	display := firstString(raw, "display_name", "title", "name")
	if display == "" {
		display = id
	}
	return ModelSummary{
		ID:          id,
		DisplayName: display,
		TypeHint:    firstString(raw, "type", "category", "task"),
	}, true
}

func (g genericAdapter) NormalizeModelDetail(raw map[string]any) (ModelDef, bool) {
	summary, ok := g.NormalizeSearchResult(raw)
	if !ok {
		return ModelDef{}, false
	}
	return ModelDef{
		ID:          summary.ID,
		DisplayName: summary.DisplayName,
		TypeHint:    summary.TypeHint,
	}, true
}

// falAdapter understands fal.ai style model documents, where the model id is
// an "endpoint_id" slug and the task category carries the capability hint.
type falAdapter struct{}

func (falAdapter) NormalizeSearchResult(raw map[string]any) (ModelSummary, bool) {
	id := firstString(raw, "endpoint_id", "id", "slug")
	if id == "" {
		return ModelSummary{}, false
	}
	display := firstString(raw, "title", "name")
	if display == "" {
		display = id
	}
	return ModelSummary{
		ID:          id,
		DisplayName: display,
		TypeHint:    firstString(raw, "category", "task", "type"),
	}, true
}

func (f falAdapter) NormalizeModelDetail(raw map[string]any) (ModelDef, bool) {
	summary, ok := f.NormalizeSearchResult(raw)
	if !ok {
		return ModelDef{}, false
	}
	def := ModelDef{
		ID:          summary.ID,
		DisplayName: summary.DisplayName,
		TypeHint:    summary.TypeHint,
	}
	if schema, ok := raw["schema"].(map[string]any); ok {
		def.Schema = schemaFromDocument(schema)
	}
	return def, true
}

func schemaFromDocument(doc map[string]any) Schema {
	schema := Schema{Properties: map[string]Property{}}
	if properties, ok := doc["properties"].(map[string]any); ok {
		for name, value := range properties {
			spec, ok := value.(map[string]any)
			if !ok {
				continue
			}
			property := Property{
				Type:        PropertyType(firstString(spec, "type")),
				Title:       firstString(spec, "title"),
				Description: firstString(spec, "description"),
				Default:     spec["default"],
			}
			schema.Properties[name] = property
		}
	}
	schema.Required = stringSlice(doc["required"])
	schema.Order = stringSlice(doc["order"])
	return schema
}

func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := raw[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if text, ok := item.(string); ok {
			out = append(out, text)
		} else {
			out = append(out, fmt.Sprint(item))
		}
	}
	return out
}
