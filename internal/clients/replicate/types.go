package replicate

import (
	"encoding/json"
	"errors"
	"time"

	"imageforge/types"
)

const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

var ErrUnexpectedOutput = errors.New("unexpected output format")

type predictionRequest struct {
	Version string          `json:"version"`
	Input   PredictionInput `json:"input"`
}

type PredictionInput struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	Scheduler         string  `json:"scheduler,omitempty"`
	Seed              *int64  `json:"seed,omitempty"`

	// Image-to-image: base64 source image plus how strongly to redraw it.
	Image          string  `json:"image,omitempty"`
	PromptStrength float64 `json:"prompt_strength,omitempty"`
}

type Prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// Output is a single URL for some model versions and a list for others;
	// decode it lazily via PrimaryOutput.
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`

	CreatedAt   Timestamp `json:"created_at"`
	CompletedAt Timestamp `json:"completed_at,omitempty"`
}

// Duration is the provider-side time from submission to completion; zero
// until both timestamps are present.
func (p Prediction) Duration() time.Duration {
	if p.CreatedAt.IsZero() || p.CompletedAt.IsZero() {
		return 0
	}
	return p.CompletedAt.Sub(p.CreatedAt.Time)
}

func (p Prediction) Terminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// PrimaryOutput normalizes the duck-typed output field to one URL: a bare
// string is taken as-is, a non-empty list yields its first element, anything
// else is an ErrUnexpectedOutput.
func (p Prediction) PrimaryOutput() (string, error) {
	if len(p.Output) == 0 {
		return "", ErrUnexpectedOutput
	}

	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		if single == "" {
			return "", ErrUnexpectedOutput
		}
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil {
		if len(many) == 0 || many[0] == "" {
			return "", ErrUnexpectedOutput
		}
		return many[0], nil
	}

	return "", ErrUnexpectedOutput
}

var dimensions = map[types.AspectRatio]struct{ Width, Height int }{
	types.AspectSquare:     {1024, 1024},
	types.AspectWidescreen: {1024, 576},
	types.AspectStandard:   {1024, 768},
}

// Dimensions resolves the fixed SDXL width/height pair for an aspect ratio.
func Dimensions(ar types.AspectRatio) (width, height int) {
	d, ok := dimensions[ar]
	if !ok {
		d = dimensions[types.AspectSquare]
	}
	return d.Width, d.Height
}
