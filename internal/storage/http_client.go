package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxlate/voxlate-api/internal/config"
)

// HTTPMediaStore talks to the storage sidecar over its HTTP API. The
// sidecar pulls the source URL itself, so uploads are a single small
// JSON round trip from here.
type HTTPMediaStore struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	defaultTTL time.Duration
}

var _ MediaStore = (*HTTPMediaStore)(nil)

// NewHTTPMediaStore creates a media store client from configuration.
// Returns nil when no base URL is configured; callers treat a nil store
// as "storage disabled" and keep provider URLs.
func NewHTTPMediaStore(cfg config.StorageConfig) *HTTPMediaStore {
	if cfg.BaseURL == "" {
		return nil
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &HTTPMediaStore{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		defaultTTL: 7 * 24 * time.Hour,
	}
}

type uploadRequest struct {
	Key       string `json:"key"`
	SourceURL string `json:"source_url"`
}

type uploadResponse struct {
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Upload implements MediaStore.Upload.
func (s *HTTPMediaStore) Upload(ctx context.Context, fingerprint, sourceURL string) (*UploadResult, error) {
	body, err := json.Marshal(uploadRequest{Key: fingerprint, SourceURL: sourceURL})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/objects", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUploadFailed, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: storage returned HTTP %d", ErrUploadFailed, resp.StatusCode)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: unparseable storage response: %v", ErrUploadFailed, err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("%w: storage response missing object URL", ErrUploadFailed)
	}

	expires := time.Now().UTC().Add(s.defaultTTL)
	if parsed.ExpiresAt != nil {
		expires = parsed.ExpiresAt.UTC()
	}

	return &UploadResult{StorageRef: parsed.URL, ExpiresAt: expires}, nil
}
