// Package storage keeps the HTML payloads of uploaded apps, either on the
// local disk or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/imagelock/internal/config"
)

// ErrNotFound is returned by Open for unknown keys.
var ErrNotFound = errors.New("storage: object not found")

// ErrInvalidKey is returned for keys that would leave the storage root.
var ErrInvalidKey = errors.New("storage: invalid key")

// Store holds app payloads by key. Deleting a missing key is not an error.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh, unguessable key for an uploaded app.
func NewKey(now time.Time) string {
	return fmt.Sprintf("%d/%02d/%02d/%s.html", now.Year(), now.Month(), now.Day(), uuid.New())
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, localRoot string) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(localRoot)
	case "s3":
		return NewS3Store(ctx, cfg)
	}
	return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
}
