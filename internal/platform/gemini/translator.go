// Package gemini provides a generation.Translator implementation backed by
// Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/voxlate/voxlate-api/internal/config"
	"github.com/voxlate/voxlate-api/internal/generation"
)

// Default prompt template used when none is supplied.
const defaultPromptTemplate = `You are a professional subtitle translator.

Translate the following captions into {{.TargetLang}}.
{{if .SourceLang}}The source language is {{.SourceLang}}.{{end}}
{{if .Style}}Write the translation in a {{.Style}} style.{{end}}
{{if .Instruction}}Additional instruction from the user: {{.Instruction}}{{end}}

Preserve timing markers and line structure exactly. Output only the
translated captions, with no commentary.

Captions:
{{.Text}}`

// GeminiTranslator implements generation.Translator using the Gemini API.
type GeminiTranslator struct {
	client         *genai.Client
	modelName      string
	promptTemplate *template.Template
	maxRetries     int
	baseRetryDelay time.Duration
	logger         *slog.Logger
}

// Ensure GeminiTranslator implements the Translator interface
var _ generation.Translator = (*GeminiTranslator)(nil)

// NewGeminiTranslator creates a translator from LLM configuration.
// Returns an error wrapping generation.ErrInvalidConfig if the API key or
// model name is missing, or if the client cannot be constructed.
func NewGeminiTranslator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*GeminiTranslator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name is required", generation.ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	tmpl, err := template.New("translate").Parse(defaultPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", generation.ErrInvalidConfig, err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := time.Duration(cfg.RetryDelaySeconds) * time.Second
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}

	return &GeminiTranslator{
		client:         client,
		modelName:      cfg.ModelName,
		promptTemplate: tmpl,
		maxRetries:     maxRetries,
		baseRetryDelay: baseDelay,
		logger:         logger.With(slog.String("component", "gemini_translator")),
	}, nil
}

// Translate implements generation.Translator. It builds the prompt, calls
// the model with retries for transient failures, and returns the streamed
// response chunks concatenated into one string.
func (t *GeminiTranslator) Translate(ctx context.Context, req generation.Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("%w: empty caption text", generation.ErrTranslationFailed)
	}
	if req.TargetLang == "" {
		return "", fmt.Errorf("%w: target language is required", generation.ErrTranslationFailed)
	}

	prompt, err := t.buildPrompt(req)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.retryDelay(attempt)
			t.logger.Debug("retrying translation",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: context canceled during retry: %v",
					generation.ErrTranslationFailed, ctx.Err())
			}
		}

		text, err := t.callModel(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		// Content blocks and malformed responses will not improve on retry.
		if errors.Is(err, generation.ErrContentBlocked) || errors.Is(err, generation.ErrInvalidResponse) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: context canceled: %v", generation.ErrTranslationFailed, ctx.Err())
		}

		t.logger.Warn("translation attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}

	return "", fmt.Errorf("%w: all %d attempts failed: %v",
		generation.ErrTranslationFailed, t.maxRetries+1, lastErr)
}

// callModel performs a single streaming generation call and concatenates
// the chunks.
func (t *GeminiTranslator) callModel(ctx context.Context, prompt string) (string, error) {
	var sb strings.Builder

	for resp, err := range t.client.Models.GenerateContentStream(ctx, t.modelName, genai.Text(prompt), nil) {
		if err != nil {
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		}
		if blocked(resp) {
			return "", fmt.Errorf("%w: response blocked by safety filters", generation.ErrContentBlocked)
		}
		sb.WriteString(resp.Text())
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: model returned empty text", generation.ErrInvalidResponse)
	}
	return text, nil
}

// blocked reports whether the model refused the content.
func blocked(resp *genai.GenerateContentResponse) bool {
	if resp == nil {
		return false
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return true
	}
	for _, cand := range resp.Candidates {
		if cand != nil && cand.FinishReason == genai.FinishReasonSafety {
			return true
		}
	}
	return false
}

// buildPrompt renders the prompt template for one request.
func (t *GeminiTranslator) buildPrompt(req generation.Request) (string, error) {
	var sb strings.Builder
	if err := t.promptTemplate.Execute(&sb, req); err != nil {
		return "", fmt.Errorf("%w: failed to render prompt: %v", generation.ErrTranslationFailed, err)
	}
	return sb.String(), nil
}

// retryDelay computes exponential backoff with jitter for the given attempt.
func (t *GeminiTranslator) retryDelay(attempt int) time.Duration {
	backoff := t.baseRetryDelay * (1 << uint(attempt-1))
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(backoff) * jitter)
}
