package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/osnovaresurs/leadbot/pkg/logging"
)

const (
	defaultGigaChatAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	defaultGigaChatBaseURL = "https://gigachat.devices.sberbank.ru/api/v1"
	defaultGigaChatModel   = "GigaChat"
	defaultGigaChatScope   = "GIGACHAT_API_PERS"

	// refresh the token slightly before the server-side expiry
	tokenExpirySlack = 30 * time.Second
)

// GigaChatConfig controls the GigaChat-backed fallback.
type GigaChatConfig struct {
	Credentials string // base64 authorization key for the OAuth exchange
	AuthURL     string
	BaseURL     string
	Scope       string
	Model       string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *logging.Logger
}

// GigaChatClient delegates free-form messages to the GigaChat completions
// API. Each request carries the intake system prompt and the user's text;
// the backend keeps no per-user thread, so Reset is a no-op.
type GigaChatClient struct {
	credentials string
	authURL     string
	baseURL     string
	scope       string
	model       string
	httpClient  *http.Client
	logger      *logging.Logger
	tracer      trace.Tracer

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewGigaChatClient creates a configured GigaChat client.
func NewGigaChatClient(cfg GigaChatConfig) (*GigaChatClient, error) {
	if strings.TrimSpace(cfg.Credentials) == "" {
		return nil, errors.New("assistant: gigachat credentials are required")
	}
	authURL := strings.TrimSpace(cfg.AuthURL)
	if authURL == "" {
		authURL = defaultGigaChatAuthURL
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultGigaChatBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	scope := strings.TrimSpace(cfg.Scope)
	if scope == "" {
		scope = defaultGigaChatScope
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGigaChatModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &GigaChatClient{
		credentials: cfg.Credentials,
		authURL:     authURL,
		baseURL:     baseURL,
		scope:       scope,
		model:       model,
		httpClient:  httpClient,
		logger:      logger,
		tracer:      otel.Tracer("leadbot.internal.assistant.gigachat"),
	}, nil
}

type gigaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type gigaChatCompletionRequest struct {
	Model    string            `json:"model"`
	Messages []gigaChatMessage `json:"messages"`
}

type gigaChatCompletionResponse struct {
	Choices []struct {
		Message gigaChatMessage `json:"message"`
	} `json:"choices"`
}

type gigaChatTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
}

// Reply sends the user's text with the intake system prompt and returns
// the model's answer.
func (c *GigaChatClient) Reply(ctx context.Context, userID int64, text string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "assistant.gigachat.reply")
	defer span.End()

	body, err := json.Marshal(gigaChatCompletionRequest{
		Model: c.model,
		Messages: []gigaChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("assistant: marshal completion request: %w", err)
	}

	data, err := c.invoke(ctx, body)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", err
	}

	var resp gigaChatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("assistant: decode completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("assistant: gigachat returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Reset is a no-op: GigaChat requests carry no per-user state.
func (c *GigaChatClient) Reset(context.Context, int64) error {
	return nil
}

// invoke posts a completion request, refreshing the OAuth token once if
// the cached one is rejected.
func (c *GigaChatClient) invoke(ctx context.Context, body []byte) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.token(ctx, attempt > 0)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("assistant: build completion request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("assistant: gigachat http error: %w", err)
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("assistant: read completion response: %w", readErr)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn("gigachat token rejected, refreshing")
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("assistant: gigachat returned status %d: %s", resp.StatusCode, truncateBody(data))
		}
		return data, nil
	}
	return nil, errors.New("assistant: gigachat request failed after token refresh")
}

// token returns a cached access token, exchanging credentials when the
// cache is empty, stale, or force is set.
func (c *GigaChatClient) token(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.accessToken != "" && time.Now().Before(c.expiresAt.Add(-tokenExpirySlack)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("assistant: build token request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("assistant: token http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("assistant: read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("assistant: token endpoint returned status %d: %s", resp.StatusCode, truncateBody(data))
	}

	var tok gigaChatTokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", fmt.Errorf("assistant: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("assistant: token response missing access_token")
	}

	c.accessToken = tok.AccessToken
	c.expiresAt = time.UnixMilli(tok.ExpiresAt)
	return c.accessToken, nil
}

func truncateBody(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

var _ Client = (*GigaChatClient)(nil)
