package pollinations

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"imageforge/config"
	"imageforge/types"
	"imageforge/utils"

	"github.com/charmbracelet/log"
)

// Pollinations serves images straight from a parameterized GET URL, so
// "generating" is URL assembly: no network round trip is needed before the
// result can be shown.

var ErrEmptyPrompt = errors.New("prompt is required")

// promptSuffix nudges the model toward higher quality output.
const promptSuffix = ", masterpiece, best quality, highly detailed"

var dimensions = map[types.AspectRatio]struct{ Width, Height int }{
	types.AspectSquare:     {768, 768},
	types.AspectWidescreen: {1024, 576},
	types.AspectStandard:   {768, 576},
}

// Dimensions resolves the fixed width/height pair for an aspect ratio.
func Dimensions(ar types.AspectRatio) (width, height int) {
	d, ok := dimensions[ar]
	if !ok {
		d = dimensions[types.AspectSquare]
	}
	return d.Width, d.Height
}

type Client struct {
	baseUrl string
	model   string
	steps   int
	probe   bool

	httpClient *http.Client
	log        *log.Logger
}

func NewClient(cfg config.PollinationsConfig) *Client {
	baseUrl := strings.TrimSpace(cfg.BaseUrl)
	if baseUrl == "" {
		baseUrl = "https://image.pollinations.ai/prompt/"
	}
	if !strings.HasSuffix(baseUrl, "/") {
		baseUrl += "/"
	}
	model := cfg.Model
	if model == "" {
		model = "flux"
	}
	steps := cfg.Steps
	if steps <= 0 {
		steps = 20
	}

	return &Client{
		baseUrl: baseUrl,
		model:   model,
		steps:   steps,
		probe:   cfg.Probe,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With("component", "pollinations"),
	}
}

func (c *Client) Name() string { return "pollinations" }

// Configured is always true: Pollinations needs no API key.
func (c *Client) Configured() bool { return true }

func (c *Client) Generate(ctx context.Context, req types.GenerationRequest) (types.GeneratedImage, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return types.GeneratedImage{}, ErrEmptyPrompt
	}

	ratio := types.NormalizeAspectRatio(string(req.AspectRatio))
	width, height := Dimensions(ratio)

	// A fresh seed per call keeps repeated identical prompts from hitting the
	// provider's cache and returning the same image.
	seed := time.Now().UnixMilli()%1_000_000 + rand.Int64N(1000)
	if req.Seed != nil {
		seed = *req.Seed
	}

	params := url.Values{}
	params.Set("width", strconv.Itoa(width))
	params.Set("height", strconv.Itoa(height))
	params.Set("seed", strconv.FormatInt(seed, 10))
	params.Set("enhance", "true")
	params.Set("nologo", "true")
	params.Set("model", c.model)
	params.Set("steps", strconv.Itoa(c.steps))

	imageUrl := c.baseUrl + url.PathEscape(prompt+promptSuffix) + "?" + params.Encode()

	img := types.GeneratedImage{
		ID:          fmt.Sprintf("pollinations_%d_%s", time.Now().UnixMilli(), utils.NewJobID()[:9]),
		URL:         imageUrl,
		Prompt:      prompt,
		AspectRatio: ratio,
		Timestamp:   time.Now(),
	}

	if c.probe {
		go c.probeUrl(imageUrl)
	}

	return img, nil
}

// probeUrl pre-warms the assembled URL. It must never block or fail the
// generation that already returned.
func (c *Client) probeUrl(imageUrl string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageUrl, nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("probe failed", "err", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("probe returned non-2xx", "status", resp.StatusCode)
	}
}
