package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"imageforge/types"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS saved_images (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    prompt            TEXT NOT NULL,
    image_url         TEXT NOT NULL,
    source_url        TEXT NOT NULL,
    aspect_ratio      TEXT NOT NULL DEFAULT '1:1',
    style             TEXT NOT NULL DEFAULT 'vivid',
    is_favorite       INTEGER NOT NULL DEFAULT 0,
    storage_file_path TEXT NOT NULL DEFAULT '',
    created_at        TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_saved_images_user_source ON saved_images(user_id, source_url);
CREATE INDEX IF NOT EXISTS idx_saved_images_user ON saved_images(user_id);
`

// timeLayout keeps millisecond precision so newest-first ordering survives
// rapid consecutive saves.
const timeLayout = "2006-01-02 15:04:05.000"

var ErrNotFound = errors.New("record not found")

func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	return db, nil
}

type Queries struct {
	db *sql.DB
}

func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

func (q *Queries) Insert(img types.SavedImage) (*types.SavedImage, error) {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.Exec(
		`INSERT INTO saved_images (id, user_id, prompt, image_url, source_url, aspect_ratio, style, is_favorite, storage_file_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.UserID, img.Prompt, img.ImageURL, img.SourceURL, string(img.AspectRatio), img.Style,
		boolToInt(img.IsFavorite), img.StorageFilePath, img.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting saved image: %w", err)
	}
	return q.Get(img.ID, img.UserID)
}

func (q *Queries) Get(id, userID string) (*types.SavedImage, error) {
	row := q.db.QueryRow(
		`SELECT id, user_id, prompt, image_url, source_url, aspect_ratio, style, is_favorite, storage_file_path, created_at
		 FROM saved_images WHERE id = ? AND user_id = ?`, id, userID,
	)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return img, err
}

// GetByUserAndSource is the idempotency lookup, keyed by the provider URL the
// image came from; a missing row is not an error.
func (q *Queries) GetByUserAndSource(userID, sourceURL string) (*types.SavedImage, error) {
	row := q.db.QueryRow(
		`SELECT id, user_id, prompt, image_url, source_url, aspect_ratio, style, is_favorite, storage_file_path, created_at
		 FROM saved_images WHERE user_id = ? AND source_url = ?`, userID, sourceURL,
	)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return img, err
}

func (q *Queries) ListByUser(userID string) ([]types.SavedImage, error) {
	rows, err := q.db.Query(
		`SELECT id, user_id, prompt, image_url, source_url, aspect_ratio, style, is_favorite, storage_file_path, created_at
		 FROM saved_images WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing saved images: %w", err)
	}
	defer rows.Close()

	var results []types.SavedImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning saved image: %w", err)
		}
		// a malformed row must not break history rendering
		if img.ID == "" {
			continue
		}
		results = append(results, *img)
	}
	return results, rows.Err()
}

func (q *Queries) ToggleFavorite(id, userID string) (*types.SavedImage, error) {
	res, err := q.db.Exec(
		`UPDATE saved_images SET is_favorite = 1 - is_favorite WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("toggling favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return q.Get(id, userID)
}

func (q *Queries) Delete(id, userID string) error {
	res, err := q.db.Exec(`DELETE FROM saved_images WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting saved image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (*types.SavedImage, error) {
	img := &types.SavedImage{}
	var ratio string
	var favorite int
	var createdAt string
	if err := s.Scan(&img.ID, &img.UserID, &img.Prompt, &img.ImageURL, &img.SourceURL, &ratio, &img.Style,
		&favorite, &img.StorageFilePath, &createdAt); err != nil {
		return nil, err
	}
	img.AspectRatio = types.AspectRatio(ratio)
	img.IsFavorite = favorite != 0
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		img.CreatedAt = t
	}
	return img, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
