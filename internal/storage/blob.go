package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidKey = errors.New("invalid blob key")
	ErrNotFound   = errors.New("blob not found")
)

// BlobStore holds question images and imported package assets.
type BlobStore interface {
	// Put stores r under key and returns the canonical key. size may be -1.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// SignedURL returns a URL a browser can fetch without credentials.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// CleanKey normalizes a slash-separated key and rejects keys that escape the
// store root.
func CleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return k, nil
}

// ImageKey builds a unique key for an image attached to a question.
func ImageKey(questionID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return "questions/" + questionID + "/" + uuid.NewString() + ext
}
