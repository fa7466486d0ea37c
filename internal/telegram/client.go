package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"log/slog"
)

const defaultBaseURL = "https://api.telegram.org"

// Config controls how the Bot API client behaves.
type Config struct {
	Token      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client wraps the handful of Bot API methods the bot needs.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	pollClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	pollClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
		// long polls outlive the regular timeout; the per-call context
		// bounds them instead
		pollClient = &http.Client{}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    baseURL,
		httpClient: httpClient,
		pollClient: pollClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}, nil
}

// SendMessage posts a new message, optionally with an inline keyboard,
// and returns it as echoed back by the API.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("telegram: message text required")
	}
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ReplyMarkup: markup})
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal sendMessage body: %w", err)
	}
	data, err := c.invoke(ctx, c.httpClient, "sendMessage", body)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("telegram: decode sendMessage result: %w", err)
	}
	return &msg, nil
}

// EditMessageText rewrites a previously sent message in place.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	if messageID == 0 {
		return errors.New("telegram: message id required")
	}
	body, err := json.Marshal(editMessageTextRequest{ChatID: chatID, MessageID: messageID, Text: text, ReplyMarkup: markup})
	if err != nil {
		return fmt.Errorf("telegram: marshal editMessageText body: %w", err)
	}
	_, err = c.invoke(ctx, c.httpClient, "editMessageText", body)
	return err
}

// AnswerCallbackQuery acknowledges a button press so the client stops
// showing its progress spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	if strings.TrimSpace(callbackQueryID) == "" {
		return errors.New("telegram: callback query id required")
	}
	body, err := json.Marshal(answerCallbackQueryRequest{CallbackQueryID: callbackQueryID})
	if err != nil {
		return fmt.Errorf("telegram: marshal answerCallbackQuery body: %w", err)
	}
	_, err = c.invoke(ctx, c.httpClient, "answerCallbackQuery", body)
	return err
}

// GetUpdates long-polls for new updates starting at offset. The call
// blocks up to timeoutSecs server side plus a small grace period.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSecs int) ([]Update, error) {
	if timeoutSecs < 0 {
		timeoutSecs = 0
	}
	body, err := json.Marshal(getUpdatesRequest{
		Offset:         offset,
		Timeout:        timeoutSecs,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal getUpdates body: %w", err)
	}
	pollCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second+10*time.Second)
	defer cancel()
	data, err := c.invoke(pollCtx, c.pollClient, "getUpdates", body)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, fmt.Errorf("telegram: decode getUpdates result: %w", err)
	}
	return updates, nil
}

// envelope is the uniform Bot API response wrapper.
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (c *Client) invoke(ctx context.Context, httpClient *http.Client, method string, body []byte) (json.RawMessage, error) {
	fullURL := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("telegram: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == c.maxRetries {
				return nil, fmt.Errorf("telegram: http error: %w", err)
			}
			lastErr = err
			c.logRetry(method, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		var env envelope
		decodeErr := json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("telegram: decode response: %w", decodeErr)
		}
		if env.OK {
			return env.Result, nil
		}
		apiErr := &apiError{method: method, code: env.ErrorCode, description: env.Description}
		if attempt < c.maxRetries && shouldRetry(env.ErrorCode) {
			lastErr = apiErr
			c.logRetry(method, attempt, env.ErrorCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	return nil, fmt.Errorf("telegram: %s failed after retries: %w", method, lastErr)
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff << attempt
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(method string, attempt, code int, err error) {
	c.logger.Warn("telegram call retrying",
		slog.String("method", method),
		slog.Int("attempt", attempt+1),
		slog.Int("error_code", code),
		slog.String("error", err.Error()),
	)
}

// shouldRetry covers flood control and transient server errors.
func shouldRetry(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

type apiError struct {
	method      string
	code        int
	description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram: %s failed with code %d: %s", e.method, e.code, e.description)
}
