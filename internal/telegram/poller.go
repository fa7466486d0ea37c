package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/osnovaresurs/leadbot/internal/intake"
	"github.com/osnovaresurs/leadbot/pkg/logging"
)

const pollRetryDelay = 3 * time.Second

// EventDispatcher receives the events extracted from updates.
type EventDispatcher interface {
	DispatchAsync(ctx context.Context, ev intake.Event)
	Wait()
}

// Poller drives the getUpdates loop and feeds events to the dispatcher.
type Poller struct {
	client      *Client
	dispatcher  EventDispatcher
	pollTimeout int
	logger      *logging.Logger
}

// NewPoller creates a long-poll consumer. pollTimeoutSecs is the
// server-side hold time for each getUpdates call.
func NewPoller(client *Client, dispatcher EventDispatcher, pollTimeoutSecs int, logger *logging.Logger) *Poller {
	if client == nil {
		panic("telegram: client cannot be nil")
	}
	if dispatcher == nil {
		panic("telegram: dispatcher cannot be nil")
	}
	if pollTimeoutSecs <= 0 {
		pollTimeoutSecs = 30
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{
		client:      client,
		dispatcher:  dispatcher,
		pollTimeout: pollTimeoutSecs,
		logger:      logger,
	}
}

// Run polls until the context is canceled, then waits for in-flight
// events to finish. Poll failures are logged and retried after a delay
// so transient API outages never kill the loop.
func (p *Poller) Run(ctx context.Context) error {
	defer p.dispatcher.Wait()

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := p.client.GetUpdates(ctx, offset, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("poll failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			p.handleUpdate(ctx, update)
		}
	}
}

func (p *Poller) handleUpdate(ctx context.Context, update Update) {
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		// ack first so the client drops its spinner even when handling
		// is slow
		if err := p.client.AnswerCallbackQuery(ctx, cq.ID); err != nil {
			p.logger.Warn("failed to answer callback query", "user_id", cq.From.ID, "error", err)
		}
		p.dispatcher.DispatchAsync(ctx, intake.Event{
			Kind:        intake.EventChoice,
			UserID:      cq.From.ID,
			DisplayName: displayName(&cq.From),
			Choice:      cq.Data,
		})

	case update.Message != nil && update.Message.Text != "":
		msg := update.Message
		ev := intake.Event{
			UserID:      msg.Chat.ID,
			DisplayName: displayName(msg.From),
			Text:        msg.Text,
		}
		if cmd, ok := parseCommand(msg.Text); ok {
			ev.Kind = intake.EventCommand
			ev.Command = cmd
		} else {
			ev.Kind = intake.EventText
		}
		p.dispatcher.DispatchAsync(ctx, ev)

	default:
		p.logger.Debug("skipping unsupported update", "update_id", update.UpdateID)
	}
}

// parseCommand recognizes "/cmd" and "/cmd@BotName" prefixes.
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(cmd, " \n"); i >= 0 {
		cmd = cmd[:i]
	}
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", false
	}
	return cmd, true
}

func displayName(u *User) string {
	if u == nil {
		return ""
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}
