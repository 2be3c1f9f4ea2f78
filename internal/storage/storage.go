// Package storage defines the boundary to the object-storage service that
// re-hosts provider media URLs under stable, longer-lived references.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUploadFailed is returned when the storage service rejects or fails an
// upload. Callers treat it as a degradation signal, not a task failure.
var ErrUploadFailed = errors.New("failed to upload media to storage")

// UploadResult describes where a stored object lives and for how long.
type UploadResult struct {
	// StorageRef is the stable URL of the re-hosted object.
	StorageRef string

	// ExpiresAt is when the reference stops being served.
	ExpiresAt time.Time
}

// MediaStore copies a provider-hosted media URL into durable storage.
// Implementations must be safe for concurrent use.
type MediaStore interface {
	// Upload fetches sourceURL server-side and stores it keyed by the task
	// fingerprint. Returns ErrUploadFailed (possibly wrapped) on any failure.
	Upload(ctx context.Context, fingerprint, sourceURL string) (*UploadResult, error)
}
