package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ExtFromContentType picks a file extension for an image payload based on its
// Content-Type. Unknown or missing types fall back to jpg, matching what the
// providers serve most of the time.
func ExtFromContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "jpg"
	}
	switch mt {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/jpeg", "image/jpg":
		return "jpg"
	}
	if rest, ok := strings.CutPrefix(mt, "image/"); ok && rest != "" {
		return rest
	}
	return "jpg"
}

// prevents directory traversal; only writes under baseDir
func SafeSubdir(base, subdir string) (string, error) {
	subdir = strings.TrimSpace(subdir)
	subdir = strings.TrimPrefix(subdir, "/")
	subdir = strings.TrimPrefix(subdir, "\\")
	clean := filepath.Clean(subdir)

	if clean == "." || clean == "" {
		return filepath.Abs(base)
	}

	joined := filepath.Join(base, clean)

	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	joinedAbs, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}

	sep := string(os.PathSeparator)
	if !(joinedAbs == baseAbs || strings.HasPrefix(joinedAbs, baseAbs+sep)) {
		return "", errors.New("path traversal detected")
	}
	return joinedAbs, nil
}

func NewJobID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
