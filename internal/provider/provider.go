// Package provider contains the external metadata/extraction provider
// clients and the primary/backup fallback orchestrator that normalizes
// their output into one shape.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxlate/voxlate-api/internal/domain"
)

// Classification buckets every provider call outcome. The orchestrator
// decides fallback behavior on the classification alone, never on raw
// error text.
type Classification string

const (
	ClassSuccess        Classification = "success"
	ClassQuotaExceeded  Classification = "quota_exceeded"
	ClassNoUsableData   Classification = "no_usable_data"
	ClassNetworkTimeout Classification = "network_timeout"
	ClassOther          Classification = "other"
)

// FetchRequest asks a provider to resolve one source URL.
type FetchRequest struct {
	URL        string
	OutputKind domain.OutputKind
}

// FetchResult is the normalized output shape shared by all providers.
type FetchResult struct {
	Platform string
	Metadata domain.MediaMetadata

	// Captions holds the extracted subtitle payload in SRT form; empty
	// when the provider had none.
	Captions string

	// MediaURL is the provider's downloadable-content reference; empty
	// for captions-only results.
	MediaURL string
}

// Client is one external metadata/extraction provider.
type Client interface {
	// Name identifies the provider in logs and combined errors.
	Name() string

	// Fetch resolves the request or returns a *ClassifiedError.
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

// ClassifiedError is a provider failure tagged with its classification.
type ClassifiedError struct {
	Provider       string
	Classification Classification
	Message        string
}

// Error implements the error interface for ClassifiedError.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("provider %s: %s (%s)", e.Provider, e.Message, e.Classification)
}

// Classify extracts the classification from an error, defaulting to
// ClassOther for anything untagged.
func Classify(err error) Classification {
	if err == nil {
		return ClassSuccess
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Classification
	}
	return ClassOther
}

// CombinedError carries both classified failures after the primary and
// the backup provider have been exhausted. Its message becomes the task's
// terminal error description.
type CombinedError struct {
	Primary *ClassifiedError
	Backup  *ClassifiedError
}

// Error implements the error interface for CombinedError.
func (e *CombinedError) Error() string {
	return fmt.Sprintf("all providers failed: primary %s: %s (%s); backup %s: %s (%s)",
		e.Primary.Provider, e.Primary.Message, e.Primary.Classification,
		e.Backup.Provider, e.Backup.Message, e.Backup.Classification)
}
