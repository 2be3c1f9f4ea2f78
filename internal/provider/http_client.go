package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/voxlate/voxlate-api/internal/config"
	"github.com/voxlate/voxlate-api/internal/domain"
)

// HTTPClient talks to one extraction provider over its HTTP API and
// classifies every outcome.
type HTTPClient struct {
	httpClient *http.Client
	name       string
	baseURL    string
	apiKey     string
}

// NewHTTPClient creates a provider client from its configuration.
func NewHTTPClient(cfg config.ProviderConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// Ensure HTTPClient implements the Client interface
var _ Client = (*HTTPClient)(nil)

// Name implements Client.Name
func (c *HTTPClient) Name() string {
	return c.name
}

// extractEnvelope is the provider response wrapper.
type extractEnvelope struct {
	Success        bool         `json:"success"`
	Classification string       `json:"classification,omitempty"`
	Message        string       `json:"message,omitempty"`
	Data           *extractData `json:"data,omitempty"`
}

// extractData is the provider payload. Numeric fields are decoded as `any`
// because providers send numbers, numeric strings, or junk; coercion
// normalizes all of it.
type extractData struct {
	Platform     string `json:"platform"`
	Title        any    `json:"title"`
	Author       any    `json:"author"`
	ViewCount    any    `json:"view_count"`
	LikeCount    any    `json:"like_count"`
	CommentCount any    `json:"comment_count"`
	Duration     any    `json:"duration"`
	Thumbnail    any    `json:"thumbnail"`
	PublishedAt  any    `json:"published_at"`
	Language     any    `json:"language"`
	Captions     string `json:"captions,omitempty"`
	MediaURL     string `json:"media_url,omitempty"`
}

// Fetch implements Client.Fetch
func (c *HTTPClient) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	body, err := json.Marshal(map[string]string{
		"url":         req.URL,
		"output_kind": string(req.OutputKind),
	})
	if err != nil {
		return nil, c.classified(ClassOther, fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, c.classified(ClassOther, fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, c.classifyTransport(err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusPaymentRequired:
		return nil, c.classified(ClassQuotaExceeded,
			fmt.Sprintf("provider returned HTTP %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, c.classified(ClassNoUsableData, "provider has no data for this URL")
	case resp.StatusCode >= 400:
		return nil, c.classified(ClassOther,
			fmt.Sprintf("provider returned HTTP %d: %s", resp.StatusCode, truncate(respBody, 200)))
	}

	var envelope extractEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, c.classified(ClassOther, fmt.Sprintf("unparseable provider response: %v", err))
	}

	if !envelope.Success {
		return nil, c.classified(mapClassification(envelope.Classification), envelope.Message)
	}
	if envelope.Data == nil {
		return nil, c.classified(ClassNoUsableData, "provider reported success with no data")
	}

	result := c.normalize(envelope.Data)

	// Success without the payload the caller asked for is still unusable.
	switch req.OutputKind {
	case domain.OutputKindCaptions:
		if result.Captions == "" {
			return nil, c.classified(ClassNoUsableData, "no captions available for this URL")
		}
	case domain.OutputKindMediaFile:
		if result.MediaURL == "" {
			return nil, c.classified(ClassNoUsableData, "no downloadable media for this URL")
		}
	}

	return result, nil
}

func (c *HTTPClient) normalize(data *extractData) *FetchResult {
	return &FetchResult{
		Platform: data.Platform,
		Metadata: domain.MediaMetadata{
			Title:           coerceString(data.Title),
			Author:          coerceString(data.Author),
			ViewCount:       coerceInt64(data.ViewCount),
			LikeCount:       coerceInt64(data.LikeCount),
			CommentCount:    coerceInt64(data.CommentCount),
			DurationSeconds: coerceFloatPtr(data.Duration),
			ThumbnailURL:    coerceString(data.Thumbnail),
			PublishedAt:     coerceTimePtr(data.PublishedAt),
			Language:        coerceString(data.Language),
		},
		Captions: data.Captions,
		MediaURL: data.MediaURL,
	}
}

func (c *HTTPClient) classified(class Classification, message string) *ClassifiedError {
	return &ClassifiedError{Provider: c.name, Classification: class, Message: message}
}

func (c *HTTPClient) classifyTransport(err error) *ClassifiedError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return c.classified(ClassNetworkTimeout, "provider call timed out")
	case errors.As(err, &netErr) && netErr.Timeout():
		return c.classified(ClassNetworkTimeout, "provider call timed out")
	default:
		return c.classified(ClassNetworkTimeout, fmt.Sprintf("network error: %v", err))
	}
}

// mapClassification translates provider-sent failure classes into ours.
func mapClassification(raw string) Classification {
	switch raw {
	case "quota_exceeded", "rate_limited":
		return ClassQuotaExceeded
	case "no_usable_data", "not_found":
		return ClassNoUsableData
	case "network_timeout", "timeout":
		return ClassNetworkTimeout
	default:
		return ClassOther
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
