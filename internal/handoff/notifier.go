package handoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/osnovaresurs/leadbot/internal/notify"
	"github.com/osnovaresurs/leadbot/internal/session"
	"github.com/osnovaresurs/leadbot/pkg/logging"
)

// ChannelSender posts the alert into the operator chat. The bot
// messenger satisfies this.
type ChannelSender interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
}

// Notifier forwards confirmed intake records to the operator channel.
// The channel post is the delivery that matters: its failure fails the
// handoff. Email copies and the database archive are best effort.
type Notifier struct {
	channel      ChannelSender
	operatorChat int64
	email        notify.EmailSender
	emailCopyTo  []string
	archive      *Archive
	logger       *logging.Logger
}

// NotifierOption customizes optional delivery targets.
type NotifierOption func(*Notifier)

// WithEmailCopies sends a copy of each alert to the given addresses.
func WithEmailCopies(sender notify.EmailSender, to []string) NotifierOption {
	return func(n *Notifier) {
		n.email = sender
		n.emailCopyTo = to
	}
}

// WithArchive persists each delivered record.
func WithArchive(a *Archive) NotifierOption {
	return func(n *Notifier) {
		n.archive = a
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *logging.Logger) NotifierOption {
	return func(n *Notifier) {
		n.logger = l
	}
}

// NewNotifier creates a notifier targeting the operator chat.
func NewNotifier(channel ChannelSender, operatorChat int64, opts ...NotifierOption) (*Notifier, error) {
	if channel == nil {
		return nil, fmt.Errorf("handoff: channel sender is required")
	}
	if operatorChat == 0 {
		return nil, fmt.Errorf("handoff: operator chat id is required")
	}
	n := &Notifier{
		channel:      channel,
		operatorChat: operatorChat,
		logger:       logging.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Send delivers the alert. It returns an error only when the operator
// channel post fails.
func (n *Notifier) Send(ctx context.Context, userID int64, displayName string, rec session.Intake) error {
	text := alertText(userID, displayName, rec)

	if _, err := n.channel.SendText(ctx, n.operatorChat, text); err != nil {
		return fmt.Errorf("handoff: post to operator channel: %w", err)
	}
	n.logger.Info("lead delivered to operator channel", "user_id", userID)

	if n.archive != nil {
		if err := n.archive.Save(ctx, userID, displayName, rec); err != nil {
			n.logger.Warn("failed to archive lead", "user_id", userID, "error", err)
		}
	}
	if n.email != nil {
		subject := fmt.Sprintf("Новая заявка от клиента #%d", userID)
		for _, to := range n.emailCopyTo {
			if err := n.email.Send(ctx, notify.EmailMessage{To: to, Subject: subject, Body: text}); err != nil {
				n.logger.Warn("failed to send email copy", "to", to, "error", err)
			}
		}
	}
	return nil
}

func alertText(userID int64, displayName string, rec session.Intake) string {
	var b strings.Builder
	b.WriteString("🚨 НОВАЯ ЗАЯВКА\n\n")
	fmt.Fprintf(&b, "👤 Клиент: %s\n", displayName)
	fmt.Fprintf(&b, "📞 ID: %d\n\n", userID)
	fmt.Fprintf(&b, "📍 Адрес: %s\n", orPlaceholder(rec.Address, "не указан"))
	fmt.Fprintf(&b, "⚡ Количество газа: %s\n", orPlaceholder(rec.Quantity, "не указано"))
	fmt.Fprintf(&b, "📞 Телефон: %s\n", orPlaceholder(rec.Phone, "не указан"))
	fmt.Fprintf(&b, "🎯 Услуга: %s\n\n", orPlaceholder(rec.ServiceLabel, "не указана"))
	b.WriteString("Свяжитесь с клиентом для уточнения деталей!")
	return b.String()
}

func orPlaceholder(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}
