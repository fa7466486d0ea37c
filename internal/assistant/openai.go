package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/osnovaresurs/leadbot/pkg/logging"
)

const (
	defaultRunTimeout   = 60 * time.Second
	defaultPollInterval = 700 * time.Millisecond
)

// assistantAPI is the subset of the OpenAI client used for Assistants runs.
type assistantAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

// OpenAIConfig controls the Assistants-backed fallback.
type OpenAIConfig struct {
	AssistantID  string
	RunTimeout   time.Duration
	PollInterval time.Duration
}

// OpenAIClient delegates free-form messages to a hosted OpenAI assistant,
// keeping one thread per user.
type OpenAIClient struct {
	api     assistantAPI
	threads ThreadStore
	cfg     OpenAIConfig
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewOpenAIClient returns an Assistants-backed fallback client.
func NewOpenAIClient(api assistantAPI, threads ThreadStore, cfg OpenAIConfig, logger *logging.Logger) (*OpenAIClient, error) {
	if api == nil {
		return nil, errors.New("assistant: openai client is required")
	}
	if threads == nil {
		threads = NewMemoryThreadStore()
	}
	if strings.TrimSpace(cfg.AssistantID) == "" {
		return nil, errors.New("assistant: assistant id is required")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAIClient{
		api:     api,
		threads: threads,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer("leadbot.internal.assistant.openai"),
	}, nil
}

// Reply appends the user's text to their thread, runs the assistant, and
// waits for the run to complete within the configured timeout.
func (c *OpenAIClient) Reply(ctx context.Context, userID int64, text string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "assistant.reply")
	defer span.End()
	span.SetAttributes(attribute.Int64("leadbot.user_id", userID))

	threadID, err := c.ensureThread(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("leadbot.thread_id", threadID))

	_, err = c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("assistant: failed to append message: %w", err)
	}

	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID: c.cfg.AssistantID,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("assistant: failed to start run: %w", err)
	}

	run, err = c.waitForRun(ctx, threadID, run)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	reply, err := c.collectReply(ctx, threadID, run.ID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

// Reset drops the user's thread so a restarted intake starts a fresh context.
func (c *OpenAIClient) Reset(ctx context.Context, userID int64) error {
	return c.threads.Delete(ctx, userID)
}

func (c *OpenAIClient) ensureThread(ctx context.Context, userID int64) (string, error) {
	threadID, err := c.threads.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if threadID != "" {
		return threadID, nil
	}

	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("assistant: failed to create thread: %w", err)
	}
	if err := c.threads.Set(ctx, userID, thread.ID); err != nil {
		return "", err
	}
	return thread.ID, nil
}

// waitForRun polls run status until it settles, capped by RunTimeout.
func (c *OpenAIClient) waitForRun(ctx context.Context, threadID string, run openai.Run) (openai.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress:
		case openai.RunStatusCompleted:
			return run, nil
		default:
			return run, fmt.Errorf("assistant: run ended with status %s", run.Status)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return run, ErrTimeout
			}
			return run, ctx.Err()
		case <-ticker.C:
		}

		var err error
		run, err = c.api.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return run, ErrTimeout
			}
			return run, fmt.Errorf("assistant: failed to poll run: %w", err)
		}
	}
}

func (c *OpenAIClient) collectReply(ctx context.Context, threadID, runID string) (string, error) {
	order := "asc"
	list, err := c.api.ListMessage(ctx, threadID, nil, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("assistant: failed to list messages: %w", err)
	}

	var parts []string
	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, content := range msg.Content {
			if content.Text != nil {
				parts = append(parts, content.Text.Value)
			}
		}
	}
	if len(parts) == 0 {
		return "", errors.New("assistant: run produced no reply")
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

var _ Client = (*OpenAIClient)(nil)
