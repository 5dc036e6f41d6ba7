package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPresignTTL is how long download links stay valid unless the caller
// asks otherwise.
const DefaultPresignTTL = time.Hour

var (
	ErrUnavailable = errors.New("object store unavailable")
	ErrInvalidLink = errors.New("invalid or expired download link")
	ErrInvalidKey  = errors.New("invalid storage key")
)

// Store holds image payloads by storage key.
type Store interface {
	// Put overwrites any object already stored under key.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get reports found=false, not an error, when no object has the key.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	// Delete is a no-op for unknown keys.
	Delete(ctx context.Context, key string) error
	// PresignedDownloadURL returns a link that downloads the object without
	// credentials until ttl elapses. A ttl <= 0 means DefaultPresignTTL.
	PresignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultPresignTTL
	}
	return ttl
}
