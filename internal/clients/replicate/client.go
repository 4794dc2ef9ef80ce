package replicate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"imageforge/config"
	"imageforge/internal/clients/transport"
	"imageforge/types"
	"imageforge/utils"

	"github.com/charmbracelet/log"
)

var (
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrMissingToken is a configuration error, not a retryable one.
	ErrMissingToken        = errors.New("replicate api token is not configured")
	ErrInvalidToken        = errors.New("invalid api credential")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrRateLimited         = errors.New("rate limited")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrGenerationCanceled  = errors.New("generation canceled")
	ErrPollTimeout         = errors.New("generation timed out")
)

type Client struct {
	token   string
	baseUrl string
	version string

	pollInterval time.Duration
	pollBackoff  time.Duration
	maxPolls     int

	httpClient *http.Client
	log        *log.Logger
}

func NewClient(cfg config.ReplicateConfig) *Client {
	baseUrl := strings.TrimRight(strings.TrimSpace(cfg.BaseUrl), "/")
	if baseUrl == "" {
		baseUrl = "https://api.replicate.com/v1"
	}

	interval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 3 * time.Second
	}
	backoff := time.Duration(cfg.PollBackoffSeconds) * time.Second
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	maxPolls := cfg.MaxPollAttempts
	if maxPolls <= 0 {
		maxPolls = 120
	}

	return &Client{
		token:        strings.TrimSpace(cfg.ApiToken),
		baseUrl:      baseUrl,
		version:      strings.TrimSpace(cfg.Version),
		pollInterval: interval,
		pollBackoff:  backoff,
		maxPolls:     maxPolls,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With("component", "replicate"),
	}
}

func (c *Client) Name() string { return "replicate" }

func (c *Client) Configured() bool {
	return !config.IsPlaceholder(c.token)
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization": "Token " + c.token,
	}
}

// classify maps provider status codes onto the sentinel errors callers key
// their user-facing messages off of.
func classify(err error) error {
	var se *transport.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrInvalidToken, se.Body)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrInsufficientCredits, se.Body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, se.Body)
	}
	return err
}

// CreatePrediction submits a generation job. It fails fast when the token is
// absent; that is a deployment problem no amount of retrying fixes.
func (c *Client) CreatePrediction(ctx context.Context, input PredictionInput) (Prediction, error) {
	if !c.Configured() {
		return Prediction{}, ErrMissingToken
	}

	body := predictionRequest{
		Version: c.version,
		Input:   input,
	}

	p, err := transport.Post[predictionRequest, Prediction](c.httpClient, ctx, c.baseUrl+"/predictions", body, c.headers())
	if err != nil {
		return Prediction{}, classify(err)
	}
	if p.ID == "" {
		return Prediction{}, fmt.Errorf("create prediction: response missing id")
	}
	return p, nil
}

// GetPrediction reads the current state of a job.
func (c *Client) GetPrediction(ctx context.Context, id string) (Prediction, error) {
	p, err := transport.Get[Prediction](c.httpClient, ctx, c.baseUrl+"/predictions/"+id, c.headers())
	if err != nil {
		return Prediction{}, classify(err)
	}
	return p, nil
}

// Wait polls a job until it reaches a terminal status or the attempt
// ceiling. Transient poll failures burn an attempt and wait the longer
// backoff instead of aborting.
func (c *Client) Wait(ctx context.Context, id string) (Prediction, error) {
	logger := c.log.With("prediction", id)

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		p, err := c.GetPrediction(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return Prediction{}, ctx.Err()
			}
			// a revoked credential or drained balance will not come back on
			// the next poll
			if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInsufficientCredits) {
				return Prediction{}, err
			}
			logger.Warn("poll failed, retrying", "attempt", attempt+1, "err", err)
			if err := sleep(ctx, c.pollBackoff); err != nil {
				return Prediction{}, err
			}
			continue
		}

		if p.Terminal() {
			return p, terminalError(p)
		}

		if err := sleep(ctx, c.pollInterval); err != nil {
			return Prediction{}, err
		}
	}

	return Prediction{}, ErrPollTimeout
}

// terminalError maps a terminal prediction onto the sentinel for its status;
// nil for success.
func terminalError(p Prediction) error {
	switch p.Status {
	case StatusFailed:
		if p.Error != "" {
			return fmt.Errorf("%w: %s", ErrGenerationFailed, p.Error)
		}
		return ErrGenerationFailed
	case StatusCanceled:
		return ErrGenerationCanceled
	}
	return nil
}

// Generate runs the full submit-then-poll flow and normalizes the result.
func (c *Client) Generate(ctx context.Context, req types.GenerationRequest) (types.GeneratedImage, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return types.GeneratedImage{}, ErrEmptyPrompt
	}

	ratio := types.NormalizeAspectRatio(string(req.AspectRatio))
	width, height := Dimensions(ratio)

	input := PredictionInput{
		Prompt:            prompt,
		NegativePrompt:    req.NegativePrompt,
		Width:             width,
		Height:            height,
		GuidanceScale:     req.GuidanceScale,
		NumInferenceSteps: req.InferenceSteps,
		Scheduler:         req.Scheduler,
		Seed:              req.Seed,
	}
	if input.GuidanceScale == 0 {
		input.GuidanceScale = 7.5
	}
	if input.NumInferenceSteps == 0 {
		input.NumInferenceSteps = 20
	}
	if req.SourceImage != "" {
		input.Image = req.SourceImage
		input.PromptStrength = req.Strength
		if input.PromptStrength == 0 {
			input.PromptStrength = 0.8
		}
	}

	created, err := c.CreatePrediction(ctx, input)
	if err != nil {
		return types.GeneratedImage{}, err
	}
	c.log.Info("prediction created", "prediction", created.ID, "status", created.Status)

	done := created
	if !done.Terminal() {
		done, err = c.Wait(ctx, created.ID)
		if err != nil {
			return types.GeneratedImage{}, err
		}
	} else if err := terminalError(done); err != nil {
		// some model versions reject synchronously; that is still a failed
		// generation, not a malformed output
		return types.GeneratedImage{}, err
	}

	output, err := done.PrimaryOutput()
	if err != nil {
		return types.GeneratedImage{}, err
	}
	c.log.Info("prediction finished", "prediction", done.ID, "duration", done.Duration().String())

	return types.GeneratedImage{
		ID:          fmt.Sprintf("replicate_%d_%s", time.Now().UnixMilli(), utils.NewJobID()[:9]),
		URL:         output,
		Prompt:      prompt,
		AspectRatio: ratio,
		Timestamp:   time.Now(),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
