// Package uploads stores user images on local disk and serves them by URL.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/storefront-ai/assistant-hub/internal/config"
)

// URLPrefix is the path the upload directory is served under.
const URLPrefix = "/uploads"

var (
	// ErrTooLarge is returned when a file exceeds the configured limit.
	ErrTooLarge = errors.New("uploads: file too large")
	// ErrNotImage is returned when the sniffed content is not an image.
	ErrNotImage = errors.New("uploads: only image files are allowed")
)

// Saved describes a stored upload.
type Saved struct {
	Name     string
	URL      string
	MimeType string
	Size     int64
}

// Store writes uploads into a directory.
type Store struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// New constructs a Store from cfg.
func New(cfg config.UploadsConfig) *Store {
	maxBytes := cfg.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxImageBytes
	}
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = config.DefaultUploadsDir
	}
	return &Store{
		dir:      dir,
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		maxBytes: maxBytes,
	}
}

// Dir returns the directory uploads are written to.
func (s *Store) Dir() string { return s.dir }

// SaveImage validates and stores an image upload.
func (s *Store) SaveImage(fh *multipart.FileHeader) (Saved, error) {
	if fh == nil {
		return Saved{}, errors.New("uploads: missing file")
	}
	if fh.Size > s.maxBytes {
		return Saved{}, ErrTooLarge
	}
	src, errOpen := fh.Open()
	if errOpen != nil {
		return Saved{}, fmt.Errorf("uploads: open: %w", errOpen)
	}
	defer func() { _ = src.Close() }()

	// One extra byte tells an oversized stream apart from one at the limit.
	data, errRead := io.ReadAll(io.LimitReader(src, s.maxBytes+1))
	if errRead != nil {
		return Saved{}, fmt.Errorf("uploads: read: %w", errRead)
	}
	if int64(len(data)) > s.maxBytes {
		return Saved{}, ErrTooLarge
	}
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return Saved{}, ErrNotImage
	}

	if errMkdir := os.MkdirAll(s.dir, 0o755); errMkdir != nil {
		return Saved{}, fmt.Errorf("uploads: create dir: %w", errMkdir)
	}
	name := uuid.NewString() + detected.Extension()
	if errWrite := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); errWrite != nil {
		return Saved{}, fmt.Errorf("uploads: write: %w", errWrite)
	}
	return Saved{
		Name:     name,
		URL:      s.baseURL + URLPrefix + "/" + name,
		MimeType: detected.String(),
		Size:     int64(len(data)),
	}, nil
}

// SaveTemp copies an upload into a private temp file and returns its path. The
// caller owns the file.
func SaveTemp(fh *multipart.FileHeader, maxBytes int64) (string, error) {
	if fh == nil {
		return "", errors.New("uploads: missing file")
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return "", ErrTooLarge
	}
	src, errOpen := fh.Open()
	if errOpen != nil {
		return "", fmt.Errorf("uploads: open: %w", errOpen)
	}
	defer func() { _ = src.Close() }()

	dst, errCreate := os.CreateTemp("", "assistant-hub-*"+filepath.Ext(fh.Filename))
	if errCreate != nil {
		return "", fmt.Errorf("uploads: create temp: %w", errCreate)
	}
	reader := io.Reader(src)
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}
	written, errCopy := io.Copy(dst, reader)
	errClose := dst.Close()
	if errCopy == nil && errClose != nil {
		errCopy = errClose
	}
	if errCopy == nil && maxBytes > 0 && written > maxBytes {
		errCopy = ErrTooLarge
	}
	if errCopy != nil {
		_ = os.Remove(dst.Name())
		if errors.Is(errCopy, ErrTooLarge) {
			return "", ErrTooLarge
		}
		return "", fmt.Errorf("uploads: copy temp: %w", errCopy)
	}
	return dst.Name(), nil
}
