// Package storage keeps user uploads such as avatars.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/kasuganosora/solotracker/config"
)

const (
	ModeLocal = "local"
	ModeS3    = "s3"
)

// Store writes objects and returns the URL they are served from.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	// BaseURL is the prefix of every URL Put returns.
	BaseURL() string
}

// New returns the Store selected by cfg.Mode.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Mode {
	case "", ModeLocal:
		return NewLocal(cfg.LocalDir, cfg.PublicBaseURL)
	case ModeS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unknown mode %q", cfg.Mode)
	}
}

var imageExts = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// ImageExt returns the file extension for an accepted image content type.
func ImageExt(contentType string) (string, bool) {
	ct := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	ext, ok := imageExts[strings.ToLower(ct)]
	return ext, ok
}

// AvatarKey builds a fresh object key for userID's avatar.
func AvatarKey(userID int64, ext string) string {
	return path.Join("avatars", fmt.Sprintf("%d-%s.%s", userID, uuid.NewString(), ext))
}

// KeyFromURL recovers the object key from a URL returned by Put with the
// given base, or "" if url was not produced under base.
func KeyFromURL(base, url string) string {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
