package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"imageforge/types"
)

type fakeProvider struct {
	name       string
	configured bool
	img        types.GeneratedImage
	err        error

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Configured() bool { return f.configured }
func (f *fakeProvider) Generate(ctx context.Context, req types.GenerationRequest) (types.GeneratedImage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return types.GeneratedImage{}, f.err
	}
	img := f.img
	img.Prompt = req.Prompt
	return img, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSaver struct {
	mu     sync.Mutex
	err    error
	record *types.SavedImage
	calls  []string
}

func (f *fakeSaver) Save(ctx context.Context, userID, prompt, imageURL string, ratio types.AspectRatio, style string) (*types.SavedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID+"|"+imageURL)
	return f.record, f.err
}

func (f *fakeSaver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestGenerator(p Provider, s Saver) *GeneratorService {
	g := NewGeneratorService(context.Background(), []Provider{p}, p.Name(), s, NewHub(), 2)
	g.Run()
	return g
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	p := &fakeProvider{name: "fake", configured: true}
	g := newTestGenerator(p, &fakeSaver{})

	_, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "  "}, "", "", "")
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if p.callCount() != 0 {
		t.Error("provider called for empty prompt")
	}
}

func TestGenerate_NoSessionSkipsSave(t *testing.T) {
	p := &fakeProvider{name: "fake", configured: true, img: types.GeneratedImage{ID: "i1", URL: "https://x/a.png"}}
	s := &fakeSaver{}
	g := newTestGenerator(p, s)

	img, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "a cat"}, "", "vivid", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if img.URL != "https://x/a.png" {
		t.Errorf("unexpected url %q", img.URL)
	}

	g.Shutdown()
	if s.callCount() != 0 {
		t.Error("save triggered without a session")
	}
}

func TestGenerate_SessionTriggersDetachedSave(t *testing.T) {
	p := &fakeProvider{name: "fake", configured: true, img: types.GeneratedImage{ID: "i1", URL: "https://x/a.png"}}
	s := &fakeSaver{record: &types.SavedImage{ID: "r1"}}
	g := newTestGenerator(p, s)

	if _, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "a cat"}, "user1", "vivid", "c1"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	g.Shutdown()
	if s.callCount() != 1 {
		t.Fatalf("expected one save call, got %d", s.callCount())
	}
	if s.calls[0] != "user1|https://x/a.png" {
		t.Errorf("unexpected save args %q", s.calls[0])
	}
}

func TestGenerate_SaveFailureDoesNotAffectResult(t *testing.T) {
	p := &fakeProvider{name: "fake", configured: true, img: types.GeneratedImage{ID: "i1", URL: "https://x/a.png"}}
	s := &fakeSaver{err: errors.New("db down")}
	g := newTestGenerator(p, s)

	img, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "a cat"}, "user1", "vivid", "")
	if err != nil {
		t.Fatalf("a save failure must not fail generation: %v", err)
	}

	g.Shutdown()
	if img.ID != "i1" || img.URL != "https://x/a.png" {
		t.Errorf("generated image altered by failed save: %+v", img)
	}
	if s.callCount() != 1 {
		t.Errorf("expected the save to have been attempted, got %d calls", s.callCount())
	}
}

func TestGenerate_ProviderFailurePropagates(t *testing.T) {
	p := &fakeProvider{name: "fake", configured: true, err: errors.New("provider down")}
	s := &fakeSaver{}
	g := newTestGenerator(p, s)

	_, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "a cat"}, "user1", "vivid", "")
	if err == nil {
		t.Fatal("expected provider error")
	}

	g.Shutdown()
	if s.callCount() != 0 {
		t.Error("save must not run after a failed generation")
	}
	if p.callCount() != 1 {
		t.Errorf("expected exactly one provider attempt, got %d", p.callCount())
	}
}

func TestPick_FallsBackToConfiguredProvider(t *testing.T) {
	unconfigured := &fakeProvider{name: "replicate", configured: false}
	configured := &fakeProvider{name: "pollinations", configured: true, img: types.GeneratedImage{ID: "i1", URL: "https://x/a.png"}}
	g := NewGeneratorService(context.Background(), []Provider{unconfigured, configured}, "replicate", &fakeSaver{}, NewHub(), 1)

	img, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "a cat"}, "", "", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if img.ID != "i1" {
		t.Errorf("expected fallback provider result, got %+v", img)
	}
	if unconfigured.callCount() != 0 {
		t.Error("unconfigured provider must not be called")
	}
}

func TestPick_NoConfiguredProvider(t *testing.T) {
	g := NewGeneratorService(context.Background(), []Provider{&fakeProvider{name: "replicate"}}, "replicate", &fakeSaver{}, NewHub(), 1)

	_, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "a cat"}, "", "", "")
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

// blockingSaver parks every Save call until released.
type blockingSaver struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSaver) Save(ctx context.Context, userID, prompt, imageURL string, ratio types.AspectRatio, style string) (*types.SavedImage, error) {
	b.entered <- struct{}{}
	<-b.release
	return &types.SavedImage{ID: "r1"}, nil
}

func TestGenerate_NotDelayedBySaturatedSaves(t *testing.T) {
	p := &fakeProvider{name: "fake", configured: true, img: types.GeneratedImage{ID: "i1", URL: "https://x/a.png"}}
	s := &blockingSaver{entered: make(chan struct{}, 4), release: make(chan struct{})}
	g := NewGeneratorService(context.Background(), []Provider{p}, p.Name(), s, NewHub(), 1)
	g.Run()

	// occupy the single save slot
	if _, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "a cat"}, "user1", "vivid", ""); err != nil {
		t.Fatalf("generate: %v", err)
	}
	<-s.entered

	// the next generation must answer immediately even though no save slot
	// will free up until the first save is released
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		if _, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "a dog"}, "user1", "vivid", ""); err != nil {
			t.Errorf("generate: %v", err)
		}
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("generation response stalled behind an in-flight save")
	}

	close(s.release)
	g.Shutdown()
}

func TestSpawnSave_AfterShutdownIsDropped(t *testing.T) {
	s := &fakeSaver{record: &types.SavedImage{ID: "r1"}}
	g := NewGeneratorService(context.Background(), []Provider{}, "", s, NewHub(), 1)
	g.Run()
	g.Shutdown()

	// must not panic on the closed queue, and must not run the save
	g.SpawnSave("user1", "", types.GeneratedImage{ID: "i1", URL: "https://x/a.png"}, "vivid")
	if s.callCount() != 0 {
		t.Error("save ran after shutdown")
	}
}

func TestGenerate_ConcurrentRequestsIndependent(t *testing.T) {
	p := &fakeProvider{name: "fake", configured: true, img: types.GeneratedImage{URL: "https://x/a.png"}}
	s := &fakeSaver{record: &types.SavedImage{ID: "r1"}}
	g := newTestGenerator(p, s)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Generate(context.Background(), types.GenerationRequest{Prompt: "a cat"}, "user1", "vivid", "")
			if err != nil {
				t.Errorf("generate: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		g.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent generations deadlocked")
	}
}
