package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// NormalizeSchema produces a canonical schema from a provider-supplied one.
// Every property ends with a non-empty title and a type from the canonical
// enumeration; unknown types coerce to string. Required and order metadata
// are preserved, with properties missing from order appended alphabetically
// so the result is deterministic.
func NormalizeSchema(raw Schema) Schema {
	normalized := Schema{
		Properties: make(map[string]Property, len(raw.Properties)),
		Required:   append([]string(nil), raw.Required...),
	}

	for name, property := range raw.Properties {
		normalized.Properties[name] = normalizeProperty(name, property)
	}

	seen := make(map[string]bool, len(raw.Order))
	for _, name := range raw.Order {
		if _, ok := normalized.Properties[name]; !ok || seen[name] {
			continue
		}
		seen[name] = true
		normalized.Order = append(normalized.Order, name)
	}
	var missing []string
	for name := range normalized.Properties {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	normalized.Order = append(normalized.Order, missing...)

	return normalized
}

func normalizeProperty(name string, property Property) Property {
	if !KnownPropertyType(property.Type) {
		property.Type = TypeString
	}
	if strings.TrimSpace(property.Title) == "" {
		property.Title = DefaultTitle(name)
	}
	if property.Type == TypeArray && property.Items != nil {
		items := normalizeProperty(name, *property.Items)
		property.Items = &items
	}
	return property
}

// DefaultTitle derives a display title from a property name by replacing
// separators with spaces and title-casing the words.
func DefaultTitle(name string) string {
	cleaned := strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		cleaned = name
	}
	if cleaned == "" {
		return "Value"
	}
	return titleCaser.String(cleaned)
}
