package types

type GenerateRequest struct {
	Prompt         string  `json:"prompt"`
	AspectRatio    string  `json:"aspectRatio"`
	Style          string  `json:"style"`
	NegativePrompt string  `json:"negativePrompt"`
	GuidanceScale  float64 `json:"guidanceScale"`
	InferenceSteps int     `json:"inferenceSteps"`
	Scheduler      string  `json:"scheduler"`
	Seed           *int64  `json:"seed"`
	SourceImage    string  `json:"sourceImage"`
	Strength       float64 `json:"strength"`
	// ClientID ties save notifications to an open websocket, if any.
	ClientID string `json:"clientId"`
}

type SaveImageRequest struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"imageUrl"`
	AspectRatio string `json:"aspectRatio"`
	Style       string `json:"style"`
}

type ListImagesResponse struct {
	Images []SavedImage `json:"images"`
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    int   `json:"status"`
	TimeStamp int64 `json:"timestamp"`
}
