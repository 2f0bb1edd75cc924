// Package library persists generation records, their inputs, and the media
// catalog in a dedicated SQLite database under the state directory.
package library

import "time"

// GenerationStatus tracks the lifecycle of a generation record.
type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
)

// Generation is one image or video generation request and its outcome.
type Generation struct {
	ID             string
	Seq            int64
	EndpointKey    string
	ProviderID     string
	ModelID        string
	Prompt         string
	Width          int
	Height         int
	Seed           int64
	Steps          int
	Guidance       float64
	Sampler        string
	ParamsJSON     string
	Status         GenerationStatus
	Error          string
	ElapsedMS      int64
	PromptCacheHit bool
	RefCacheHit    bool
	OutputPaths    []string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// InputSource distinguishes where a reference input originated.
type InputSource string

const (
	InputSourceLibrary  InputSource = "library"
	InputSourceExternal InputSource = "external"
)

// GenerationInput is one reference image attached to a generation, ordered
// by Position starting at zero.
type GenerationInput struct {
	ID            int64
	GenerationID  string
	MediaID       *int64
	Position      int
	SourceType    InputSource
	SourcePath    string
	ThumbnailPath string
	RefCachePath  string
	CreatedAt     time.Time
}

// MediaType classifies finished artifacts.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaOrigin records how an artifact entered the library.
type MediaOrigin string

const (
	OriginGeneration MediaOrigin = "generation"
	OriginImport     MediaOrigin = "import"
)

// Media is a finalized artifact stored under the library directory.
type Media struct {
	ID            int64
	Path          string
	ThumbnailPath string
	Type          MediaType
	Origin        MediaOrigin
	Width         int
	Height        int
	DurationMS    int64
	SizeBytes     int64
	Rating        int
	GenerationID  *string
	CreatedAt     time.Time
}

// CompletionMetrics captures the measurable outcome of a successful generation.
type CompletionMetrics struct {
	ElapsedMS      int64
	PromptCacheHit bool
	RefCacheHit    bool
	OutputPaths    []string
}
