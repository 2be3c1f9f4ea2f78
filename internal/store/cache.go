package store

import (
	"context"
	"time"

	"github.com/voxlate/voxlate-api/internal/domain"
)

// ResultCache stores previously resolved downloadable content keyed by the
// fingerprint of the normalized source URL.
//
// The cache is read-mostly and tolerant of races: entries are idempotent
// by fingerprint and the last writer wins. A Store failure must never fail
// the calling task; callers log and move on.
type ResultCache interface {
	// Lookup returns the live entry for the fingerprint, or nil when there
	// is none (including when an entry exists but has expired).
	Lookup(ctx context.Context, fingerprint string) (*domain.CacheEntry, error)

	// Store saves the entry under its fingerprint with the given TTL.
	Store(ctx context.Context, entry *domain.CacheEntry, ttl time.Duration) error
}
