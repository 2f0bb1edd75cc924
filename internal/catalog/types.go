package catalog

import "fmt"

// Mode identifies a generation capability.
type Mode string

const (
	ModeTextToImage  Mode = "text-to-image"
	ModeImageToImage Mode = "image-to-image"
	ModeTextToVideo  Mode = "text-to-video"
	ModeImageToVideo Mode = "image-to-video"
)

// OutputType classifies what an endpoint produces.
type OutputType string

const (
	OutputImage OutputType = "image"
	OutputVideo OutputType = "video"
)

// ExecutionMode selects which provider client runs an endpoint.
type ExecutionMode string

const (
	ExecutionQueuedLocal ExecutionMode = "queued-local"
	ExecutionRemoteAsync ExecutionMode = "remote-async"
)

// PropertyType enumerates the canonical schema value types.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeInteger PropertyType = "integer"
	TypeBoolean PropertyType = "boolean"
	TypeArray   PropertyType = "array"
)

// KnownPropertyType reports whether the type is in the canonical enumeration.
func KnownPropertyType(t PropertyType) bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray:
		return true
	}
	return false
}

// Property describes one canonical schema parameter.
type Property struct {
	Type        PropertyType   `toml:"type"        json:"type"`
	Title       string         `toml:"title"       json:"title"`
	Description string         `toml:"description" json:"description,omitempty"`
	Default     any            `toml:"default"     json:"default,omitempty"`
	Minimum     *float64       `toml:"minimum"     json:"minimum,omitempty"`
	Maximum     *float64       `toml:"maximum"     json:"maximum,omitempty"`
	Step        *float64       `toml:"step"        json:"step,omitempty"`
	Enum        []any          `toml:"enum"        json:"enum,omitempty"`
	Items       *Property      `toml:"items"       json:"items,omitempty"`
	UI          map[string]any `toml:"ui"          json:"ui,omitempty"`
}

// Schema is the canonical request schema for one endpoint.
type Schema struct {
	Properties map[string]Property `toml:"properties" json:"properties"`
	Required   []string            `toml:"required"   json:"required"`
	Order      []string            `toml:"order"      json:"order"`
}

// Endpoint is one normalized (provider, model, output type) capability.
type Endpoint struct {
	Key         string
	ProviderID  string
	ModelID     string
	DisplayName string
	Modes       []Mode
	OutputType  OutputType
	Execution   ExecutionMode
	Schema      Schema
	UIHints     map[string]any
}

// KeyFor builds the stable composite endpoint key.
func KeyFor(providerID, modelID string, output OutputType) string {
	return fmt.Sprintf("%s:%s:%s", providerID, modelID, output)
}

// OutputForMode maps a capability to what it produces.
func OutputForMode(mode Mode) OutputType {
	switch mode {
	case ModeTextToVideo, ModeImageToVideo:
		return OutputVideo
	}
	return OutputImage
}
