// File: internal/llmclient/openrouter.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/gandalf-cli/internal/config"
	"github.com/xkilldash9x/gandalf-cli/internal/observability"
)

// maxGenerateRetries bounds the exponential backoff on retryable API
// failures (429 and 5xx).
const maxGenerateRetries = 4

var (
	// ErrMissingAPIKey indicates the client was constructed without
	// credentials.
	ErrMissingAPIKey = errors.New("llmclient: API key is not set")

	// ErrEmptyCompletion indicates the API answered successfully but
	// returned no usable text.
	ErrEmptyCompletion = errors.New("llmclient: empty completion")
)

// OpenRouterClient is a Collaborator backed by the OpenRouter
// chat-completions API. Requests pace through a shared limiter and retry
// with exponential backoff on rate limiting and server errors.
type OpenRouterClient struct {
	httpClient *http.Client
	cfg        config.LLMConfig
	limiter    *rate.Limiter
	logger     *zap.Logger
}

var _ Collaborator = (*OpenRouterClient)(nil)

func NewOpenRouterClient(cfg config.LLMConfig, logger *zap.Logger) (*OpenRouterClient, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}
	return &OpenRouterClient{
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		cfg:        cfg,
		limiter:    limiter,
		logger:     logger.Named("openrouter"),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Generate sends the prompt as a single user message and returns the first
// choice's content.
func (c *OpenRouterClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	var completion string
	operation := func() error {
		text, err := c.complete(ctx, body)
		if err != nil {
			return err
		}
		completion = text
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxGenerateRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying completion request.", zap.Error(err), zap.Duration("backoff", wait))
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", fmt.Errorf("generating completion with %s: %w", c.cfg.Model, err)
	}
	return completion, nil
}

func (c *OpenRouterClient) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors are worth another attempt.
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("api status %d: %s", resp.StatusCode, summarize(payload))
	default:
		return "", backoff.Permanent(fmt.Errorf("api status %d: %s", resp.StatusCode, summarize(payload)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decoding chat response: %w", err))
	}
	if parsed.Error != nil {
		return "", backoff.Permanent(fmt.Errorf("api error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", backoff.Permanent(ErrEmptyCompletion)
	}
	return parsed.Choices[0].Message.Content, nil
}

// summarize trims an error body to a loggable size.
func summarize(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if len(text) > 256 {
		text = text[:256] + "..."
	}
	return text
}
