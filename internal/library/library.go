package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"imageforge/config"
	"imageforge/internal/clients/transport"
	"imageforge/internal/storage"
	"imageforge/internal/store"
	"imageforge/types"
	"imageforge/utils"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

var (
	// ErrSaveInFlight means an identical save for the same user and URL is
	// already running; the caller should treat it as a no-op.
	ErrSaveInFlight = errors.New("save already in flight")
	ErrNotImage     = errors.New("fetched content is not an image")
	ErrEmptyImage   = errors.New("image service returned an empty image; it may be experiencing issues, try again")
)

// Library records generated images for a user: fetch the bytes from the
// provider URL, park them in the object store, and keep a metadata row. The
// provider URL is ephemeral and occasionally flaky, so fetching retries with
// backoff and the whole pipeline degrades to a record pointing at the
// original URL rather than losing the save.
type Library struct {
	queries *store.Queries
	objects storage.ObjectStore

	fetchAttempts int
	fetchTimeout  time.Duration

	httpClient *http.Client
	log        *log.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(queries *store.Queries, objects storage.ObjectStore, cfg config.SavesConfig) *Library {
	attempts := cfg.FetchAttempts
	if attempts <= 0 {
		attempts = 3
	}
	timeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Library{
		queries:       queries,
		objects:       objects,
		fetchAttempts: attempts,
		fetchTimeout:  timeout,
		httpClient:    &http.Client{},
		log:           log.With("component", "library"),
		inflight:      map[string]struct{}{},
	}
}

// Save persists one generated image for a user. Duplicate saves for the same
// (user, URL) pair return the existing record; a concurrent duplicate returns
// ErrSaveInFlight. A failed fetch or upload falls back to recording the
// original provider URL.
func (l *Library) Save(ctx context.Context, userID, prompt, imageURL string, ratio types.AspectRatio, style string) (*types.SavedImage, error) {
	userID = strings.TrimSpace(userID)
	imageURL = strings.TrimSpace(imageURL)
	if userID == "" || imageURL == "" {
		return nil, errors.New("userId and imageUrl are required")
	}
	if style == "" {
		style = "vivid"
	}
	ratio = types.NormalizeAspectRatio(string(ratio))

	// The marker must be set before the first network call, otherwise two
	// concurrent saves could both pass the duplicate check.
	key := userID + "\n" + imageURL
	l.mu.Lock()
	if _, busy := l.inflight[key]; busy {
		l.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	l.inflight[key] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.inflight, key)
		l.mu.Unlock()
	}()

	// Dedup keys on the provider URL: the stored row's image_url points at
	// the durable copy and differs between attempts.
	if existing, err := l.queries.GetByUserAndSource(userID, imageURL); err != nil {
		return nil, err
	} else if existing != nil {
		l.log.Debug("duplicate save skipped", "user", userID, "url", imageURL)
		return existing, nil
	}

	logger := l.log.With("user", userID)

	data, contentType, err := l.fetchImage(ctx, imageURL)
	if err != nil {
		logger.Warn("image fetch failed, recording original url", "url", imageURL, "err", err)
		return l.insertFallback(userID, prompt, imageURL, ratio, style)
	}

	path := userID + "/" + uuid.NewString() + "." + utils.ExtFromContentType(contentType)
	publicUrl, err := l.objects.Upload(ctx, path, data, contentType)
	if err != nil {
		logger.Warn("storage upload failed, recording original url", "path", path, "err", err)
		return l.insertFallback(userID, prompt, imageURL, ratio, style)
	}

	record, err := l.queries.Insert(types.SavedImage{
		ID:              uuid.NewString(),
		UserID:          userID,
		Prompt:          prompt,
		ImageURL:        publicUrl,
		SourceURL:       imageURL,
		AspectRatio:     ratio,
		Style:           style,
		StorageFilePath: path,
	})
	if err != nil {
		return nil, fmt.Errorf("recording saved image: %w", err)
	}
	logger.Info("image saved", "id", record.ID, "path", path)
	return record, nil
}

// insertFallback records the ephemeral provider URL directly. The same
// idempotency rule applies to the fallback row.
func (l *Library) insertFallback(userID, prompt, imageURL string, ratio types.AspectRatio, style string) (*types.SavedImage, error) {
	if existing, err := l.queries.GetByUserAndSource(userID, imageURL); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	record, err := l.queries.Insert(types.SavedImage{
		ID:          uuid.NewString(),
		UserID:      userID,
		Prompt:      prompt,
		ImageURL:    imageURL,
		SourceURL:   imageURL,
		AspectRatio: ratio,
		Style:       style,
	})
	if err != nil {
		return nil, fmt.Errorf("recording fallback image: %w", err)
	}
	return record, nil
}

// fetchImage pulls the image bytes with bounded retries. Transport failures
// and non-2xx responses are retried with exponential backoff; a non-image
// content type or an empty body is a data problem retrying will not fix.
func (l *Library) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	var lastErr error

	for attempt := 0; attempt < l.fetchAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Second << (attempt - 1)
			l.log.Debug("retrying image fetch", "attempt", attempt+1, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		data, contentType, err := l.fetchOnce(ctx, imageURL)
		if err == nil {
			return data, contentType, nil
		}
		if errors.Is(err, ErrNotImage) || errors.Is(err, ErrEmptyImage) {
			return nil, "", err
		}
		lastErr = err
	}

	return nil, "", fmt.Errorf("fetching image after %d attempts: %w", l.fetchAttempts, lastErr)
}

func (l *Library) fetchOnce(ctx context.Context, imageURL string) ([]byte, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()

	resp, err := transport.Download(l.httpClient, attemptCtx, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: got %q", ErrNotImage, contentType)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}

	return data, contentType, nil
}

// Delete removes the metadata row and best-effort removes the stored object.
// A storage failure is logged and swallowed; the file may already be gone.
func (l *Library) Delete(ctx context.Context, userID, recordID string) error {
	record, err := l.queries.Get(recordID, userID)
	if err != nil {
		return err
	}

	if record.StorageFilePath != "" {
		if err := l.objects.Remove(ctx, record.StorageFilePath); err != nil {
			l.log.Warn("storage removal failed, deleting record anyway", "path", record.StorageFilePath, "err", err)
		}
	}

	return l.queries.Delete(recordID, userID)
}

// ToggleFavorite flips the flag on the server row and returns it; the row is
// the source of truth even when the caller's cache is stale.
func (l *Library) ToggleFavorite(userID, recordID string) (*types.SavedImage, error) {
	return l.queries.ToggleFavorite(recordID, userID)
}

// List returns the user's history, newest first.
func (l *Library) List(userID string) ([]types.SavedImage, error) {
	return l.queries.ListByUser(userID)
}
