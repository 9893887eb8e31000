package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"induction-portal/internal/common/config"
	apperrors "induction-portal/internal/common/errors"
	httpclient "induction-portal/internal/common/http"

	"github.com/tidwall/gjson"
)

// GenerationOptions are the sampling parameters sent with every prompt.
// A nil Temperature is filled in by NewEvaluator.
type GenerationOptions struct {
	Temperature     *float64
	MaxOutputTokens int
}

// ScoringModel turns a grading prompt into free text that should contain
// one JSON object. Implementations return ExternalService or timeout
// StandardErrors.
type ScoringModel interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error)
}

// ModelConfig configures either provider.
type ModelConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// NewScoringModel builds the model for a configured provider name.
func NewScoringModel(provider string, cfg ModelConfig) (ScoringModel, error) {
	var (
		model ScoringModel
		err   error
	)
	switch provider {
	case config.ProviderGemini:
		model, err = NewGeminiModel(cfg)
	case config.ProviderOpenAI:
		model, err = NewOpenAIModel(cfg)
	default:
		return nil, fmt.Errorf("unknown scoring provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return model, nil
}

func (c ModelConfig) client() *httpclient.Client {
	opts := []httpclient.Option{httpclient.WithMaxRetries(c.MaxRetries)}
	if c.Backoff > 0 {
		opts = append(opts, httpclient.WithBackoff(c.Backoff))
	}
	return httpclient.NewClient(c.Timeout, opts...)
}

// ==========================
// Gemini
// ==========================

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash"
)

// GeminiModel calls the Generative Language generateContent endpoint.
type GeminiModel struct {
	cfg    ModelConfig
	client *httpclient.Client
}

func NewGeminiModel(cfg ModelConfig) (*GeminiModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &GeminiModel{cfg: cfg, client: cfg.client()}, nil
}

func (m *GeminiModel) Name() string { return "gemini" }

func (m *GeminiModel) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", m.cfg.BaseURL, url.PathEscape(m.cfg.Model))
	// header rather than ?key= so transport errors never carry the key
	headers := map[string]string{"x-goog-api-key": m.cfg.APIKey}

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     opts.Temperature,
			"maxOutputTokens": opts.MaxOutputTokens,
		},
	}

	var raw json.RawMessage
	if err := m.client.PostJSON(ctx, endpoint, headers, payload, &raw); err != nil {
		return "", serviceError(m.Name(), err)
	}

	parts := gjson.GetBytes(raw, "candidates.0.content.parts.#.text")
	var sb strings.Builder
	for _, p := range parts.Array() {
		sb.WriteString(p.String())
	}
	if sb.Len() == 0 {
		reason := gjson.GetBytes(raw, "promptFeedback.blockReason").String()
		if reason == "" {
			reason = gjson.GetBytes(raw, "candidates.0.finishReason").String()
		}
		return "", apperrors.NewExternalServiceError(m.Name(), fmt.Errorf("empty response (reason: %s)", reason))
	}
	return sb.String(), nil
}

// ==========================
// OpenAI-compatible
// ==========================

const (
	DefaultOpenAIBaseURL = "https://api.openai.com"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAIModel calls an OpenAI-compatible chat completions endpoint.
type OpenAIModel struct {
	cfg    ModelConfig
	client *httpclient.Client
}

func NewOpenAIModel(cfg ModelConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &OpenAIModel{cfg: cfg, client: cfg.client()}, nil
}

func (m *OpenAIModel) Name() string { return "openai" }

func (m *OpenAIModel) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	payload := map[string]interface{}{
		"model": m.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxOutputTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + m.cfg.APIKey}

	var raw json.RawMessage
	if err := m.client.PostJSON(ctx, m.cfg.BaseURL+"/v1/chat/completions", headers, payload, &raw); err != nil {
		return "", serviceError(m.Name(), err)
	}

	text := gjson.GetBytes(raw, "choices.0.message.content").String()
	if text == "" {
		return "", apperrors.NewExternalServiceError(m.Name(), errors.New("empty response"))
	}
	return text, nil
}

func serviceError(provider string, err error) error {
	if httpclient.IsTimeout(err) {
		return apperrors.NewTimeoutError(provider, err)
	}
	return apperrors.NewExternalServiceError(provider, err)
}
