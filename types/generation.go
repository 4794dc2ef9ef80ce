package types

import "time"

type AspectRatio string

const (
	AspectSquare     AspectRatio = "1:1"
	AspectWidescreen AspectRatio = "16:9"
	AspectStandard   AspectRatio = "4:3"
)

// NormalizeAspectRatio maps anything outside the fixed set back to 1:1,
// matching the UI's default.
func NormalizeAspectRatio(s string) AspectRatio {
	switch AspectRatio(s) {
	case AspectWidescreen:
		return AspectWidescreen
	case AspectStandard:
		return AspectStandard
	default:
		return AspectSquare
	}
}

type GenerationRequest struct {
	Prompt      string      `json:"prompt"`
	AspectRatio AspectRatio `json:"aspectRatio"`

	// SDXL tuning. Zero values mean "use the provider default".
	NegativePrompt string  `json:"negativePrompt,omitempty"`
	GuidanceScale  float64 `json:"guidanceScale,omitempty"`
	InferenceSteps int     `json:"inferenceSteps,omitempty"`
	Scheduler      string  `json:"scheduler,omitempty"`
	Seed           *int64  `json:"seed,omitempty"`

	// Image-to-image: base64-encoded source image plus how far to stray from it.
	SourceImage string  `json:"sourceImage,omitempty"`
	Strength    float64 `json:"strength,omitempty"`
}

type GeneratedImage struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Prompt      string      `json:"prompt"`
	AspectRatio AspectRatio `json:"aspectRatio"`
	Timestamp   time.Time   `json:"timestamp"`
}

// SavedImage is one library row. ImageURL is what the UI renders (the durable
// copy when the upload succeeded, the provider URL otherwise); SourceURL is
// always the provider URL and is what duplicate saves are detected by.
type SavedImage struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Prompt          string      `json:"prompt"`
	ImageURL        string      `json:"imageUrl"`
	SourceURL       string      `json:"sourceUrl"`
	AspectRatio     AspectRatio `json:"aspectRatio"`
	Style           string      `json:"style"`
	IsFavorite      bool        `json:"isFavorite"`
	StorageFilePath string      `json:"storageFilePath,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}
