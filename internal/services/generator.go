package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"imageforge/internal/library"
	"imageforge/types"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyPrompt = errors.New("prompt is required")
	ErrNoProvider  = errors.New("no image provider is configured")
)

// Provider is one way of turning a request into an image: either URL assembly
// (Pollinations) or a submitted-and-polled prediction (Replicate).
type Provider interface {
	Name() string
	Configured() bool
	Generate(ctx context.Context, req types.GenerationRequest) (types.GeneratedImage, error)
}

// Saver is the persistence bridge as the orchestrator sees it.
type Saver interface {
	Save(ctx context.Context, userID, prompt, imageURL string, ratio types.AspectRatio, style string) (*types.SavedImage, error)
}

type saveJob struct {
	userID   string
	clientID string
	img      types.GeneratedImage
	style    string
}

// GeneratorService is the single entry point behind POST /generate. It calls
// the provider once, hands the image straight back, and hands persistence to
// a queue drained off the request path, so save latency and save failures
// never touch the generation result.
type GeneratorService struct {
	providers       []Provider
	defaultProvider string
	saver           Saver
	hub             *Hub

	queue    chan saveJob
	pumpDone chan struct{}
	group    errgroup.Group

	mu      sync.RWMutex
	closing bool
	started bool
	ctx     context.Context
	log     *log.Logger
}

func NewGeneratorService(ctx context.Context, providers []Provider, defaultProvider string, saver Saver, hub *Hub, maxConcurrentSaves int) *GeneratorService {
	if maxConcurrentSaves <= 0 {
		maxConcurrentSaves = 4
	}
	g := &GeneratorService{
		providers:       providers,
		defaultProvider: strings.ToLower(strings.TrimSpace(defaultProvider)),
		saver:           saver,
		hub:             hub,
		queue:           make(chan saveJob, 16*maxConcurrentSaves),
		pumpDone:        make(chan struct{}),
		ctx:             ctx,
		log:             log.With("component", "generator"),
	}
	g.group.SetLimit(maxConcurrentSaves)
	return g
}

// Run starts the pump that moves queued saves onto the bounded worker group.
// group.Go blocks while all slots are busy, which is why it runs here and
// never on a request goroutine.
func (g *GeneratorService) Run() {
	g.mu.Lock()
	g.started = true
	g.mu.Unlock()
	go func() {
		defer close(g.pumpDone)
		for {
			select {
			case <-g.ctx.Done():
				return
			case job, ok := <-g.queue:
				if !ok {
					return
				}
				jobCopy := job
				g.group.Go(func() error {
					g.runSave(jobCopy)
					return nil
				})
			}
		}
	}()
}

// pick returns the configured default provider, or the first configured one
// when the default is unusable (e.g. replicate selected but no token set).
func (g *GeneratorService) pick() (Provider, error) {
	var fallback Provider
	for _, p := range g.providers {
		if !p.Configured() {
			continue
		}
		if p.Name() == g.defaultProvider {
			return p, nil
		}
		if fallback == nil {
			fallback = p
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoProvider
}

// Generate runs one generation attempt. Exactly one provider call is made;
// retries live inside the provider clients. When a session exists the save is
// spawned detached and its outcome reported over the hub only.
func (g *GeneratorService) Generate(ctx context.Context, req types.GenerationRequest, userID, style, clientID string) (types.GeneratedImage, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return types.GeneratedImage{}, ErrEmptyPrompt
	}

	provider, err := g.pick()
	if err != nil {
		return types.GeneratedImage{}, err
	}

	img, err := provider.Generate(ctx, req)
	if err != nil {
		return types.GeneratedImage{}, err
	}
	g.log.Info("image generated", "provider", provider.Name(), "id", img.ID)

	if userID != "" {
		g.SpawnSave(userID, clientID, img, style)
	}

	return img, nil
}

// SpawnSave queues a save detached from the request that triggered it. The
// explicit name is the point: callers that want the result await Save on the
// library directly; callers that don't, spawn. Enqueueing never blocks; a
// full queue or a closing service drops the save and reports it like any
// other save failure.
func (g *GeneratorService) SpawnSave(userID, clientID string, img types.GeneratedImage, style string) {
	job := saveJob{userID: userID, clientID: clientID, img: img, style: style}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closing {
		g.log.Warn("save dropped, service shutting down", "id", img.ID)
		g.hub.SendTo(clientID, WSEvent{Type: EventSaveFailed, ImageID: img.ID, Message: "image generated but not saved"})
		return
	}
	select {
	case g.queue <- job:
	default:
		g.log.Warn("save dropped, queue full", "id", img.ID)
		g.hub.SendTo(clientID, WSEvent{Type: EventSaveFailed, ImageID: img.ID, Message: "image generated but not saved"})
	}
}

func (g *GeneratorService) runSave(job saveJob) {
	if g.ctx.Err() != nil {
		return
	}

	record, err := g.saver.Save(g.ctx, job.userID, job.img.Prompt, job.img.URL, job.img.AspectRatio, job.style)
	if err != nil {
		if errors.Is(err, library.ErrSaveInFlight) {
			g.hub.SendTo(job.clientID, WSEvent{Type: EventSaveSkipped, ImageID: job.img.ID, Message: "save already in progress"})
			return
		}
		g.log.Warn("image generated but not saved", "id", job.img.ID, "err", err)
		g.hub.SendTo(job.clientID, WSEvent{Type: EventSaveFailed, ImageID: job.img.ID, Message: "image generated but not saved"})
		return
	}
	g.hub.SendTo(job.clientID, WSEvent{Type: EventSaveCompleted, ImageID: job.img.ID, Record: record})
}

// Shutdown stops accepting saves and waits for the queued ones to drain. The
// pump must have handed every remaining job to the group before Wait, so it
// is waited on first.
func (g *GeneratorService) Shutdown() {
	g.mu.Lock()
	started := g.started
	if !g.closing {
		g.closing = true
		close(g.queue)
	}
	g.mu.Unlock()
	if started {
		<-g.pumpDone
	}
	_ = g.group.Wait()
}
