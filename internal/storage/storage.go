package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"imageforge/utils"
)

// ObjectStore is the durable home for fetched image bytes. Paths are
// user-scoped ("{userId}/{file}"); PublicURL must return a URL a browser can
// load without credentials.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (publicUrl string, err error)
	Remove(ctx context.Context, path string) error
	PublicURL(path string) string
}

// DiskStore keeps objects under a base directory and serves them through the
// API's /files/ route.
type DiskStore struct {
	baseDir       string
	publicBaseUrl string
}

func NewDiskStore(baseDir, publicBaseUrl string) (*DiskStore, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, errors.New("storage base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{
		baseDir:       baseDir,
		publicBaseUrl: strings.TrimRight(publicBaseUrl, "/"),
	}, nil
}

func (s *DiskStore) BaseDir() string { return s.baseDir }

func (s *DiskStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	full, err := utils.SafeSubdir(s.baseDir, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}

	// write to a temp file first so a partial write never becomes visible
	tmp := full + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	return s.PublicURL(path), nil
}

func (s *DiskStore) Remove(ctx context.Context, path string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	full, err := utils.SafeSubdir(s.baseDir, path)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

func (s *DiskStore) PublicURL(path string) string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	return s.publicBaseUrl + "/" + path
}
