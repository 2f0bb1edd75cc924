package catalog

import "testing"

func TestInferMode(t *testing.T) {
	tests := []struct {
		name     string
		explicit Mode
		typeHint string
		modelID  string
		want     Mode
	}{
		{"explicit wins", ModeImageToImage, "video", "some-video-model", ModeImageToImage},
		{"video hint", "", "video", "dream-machine", ModeTextToVideo},
		{"image and video", "", "", "image-to-video-xl", ModeImageToVideo},
		{"edit hint", "", "edit", "magic-editor", ModeImageToImage},
		{"image-to-image id", "", "", "sdxl-image-to-image", ModeImageToImage},
		{"default", "", "", "flux-dev", ModeTextToImage},
		{"case insensitive", "", "VIDEO", "Runway", ModeTextToVideo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferMode(tt.explicit, tt.typeHint, tt.modelID); got != tt.want {
				t.Fatalf("InferMode(%q, %q, %q) = %s, want %s", tt.explicit, tt.typeHint, tt.modelID, got, tt.want)
			}
		})
	}
}

func TestNormalizeSchemaTotality(t *testing.T) {
	raw := Schema{
		Properties: map[string]Property{
			"prompt":       {Type: TypeString, Title: "Prompt"},
			"num_frames":   {Type: "int64"},
			"aspect-ratio": {},
			"tags":         {Type: TypeArray, Items: &Property{Type: "unknown"}},
		},
		Required: []string{"prompt"},
		Order:    []string{"prompt", "missing_property"},
	}

	normalized := NormalizeSchema(raw)

	for name, property := range normalized.Properties {
		if property.Title == "" {
			t.Fatalf("property %q has empty title", name)
		}
		if !KnownPropertyType(property.Type) {
			t.Fatalf("property %q has unknown type %q", name, property.Type)
		}
	}
	if normalized.Properties["num_frames"].Type != TypeString {
		t.Fatalf("expected unknown type coerced to string, got %s", normalized.Properties["num_frames"].Type)
	}
	if got := normalized.Properties["num_frames"].Title; got != "Num Frames" {
		t.Fatalf("unexpected default title %q", got)
	}
	if got := normalized.Properties["aspect-ratio"].Title; got != "Aspect Ratio" {
		t.Fatalf("unexpected default title %q", got)
	}
	if items := normalized.Properties["tags"].Items; items == nil || items.Type != TypeString {
		t.Fatalf("expected array items coerced to string, got %#v", items)
	}
}

func TestNormalizeSchemaOrderDeterministic(t *testing.T) {
	raw := Schema{
		Properties: map[string]Property{
			"c": {Type: TypeString},
			"a": {Type: TypeString},
			"b": {Type: TypeString},
		},
		Order: []string{"b", "ghost", "b"},
	}
	normalized := NormalizeSchema(raw)

	want := []string{"b", "a", "c"}
	if len(normalized.Order) != len(want) {
		t.Fatalf("unexpected order %v", normalized.Order)
	}
	for i, name := range want {
		if normalized.Order[i] != name {
			t.Fatalf("order position %d: expected %q, got %v", i, name, normalized.Order)
		}
	}
}

func TestDefaultTitle(t *testing.T) {
	tests := map[string]string{
		"prompt":          "Prompt",
		"negative_prompt": "Negative Prompt",
		"cfg-scale":       "Cfg Scale",
		"video.fps":       "Video Fps",
	}
	for name, want := range tests {
		if got := DefaultTitle(name); got != want {
			t.Fatalf("DefaultTitle(%q) = %q, want %q", name, got, want)
		}
	}
}
