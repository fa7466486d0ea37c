package telegram

import (
	"context"

	"github.com/osnovaresurs/leadbot/internal/intake"
)

// BotMessenger adapts the Bot API client to the conversation
// controller's messenger contract.
type BotMessenger struct {
	client *Client
}

var _ intake.Messenger = (*BotMessenger)(nil)

// NewBotMessenger wraps the client.
func NewBotMessenger(client *Client) *BotMessenger {
	if client == nil {
		panic("telegram: client cannot be nil")
	}
	return &BotMessenger{client: client}
}

func (m *BotMessenger) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	msg, err := m.client.SendMessage(ctx, chatID, text, nil)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (m *BotMessenger) SendChoices(ctx context.Context, chatID int64, text string, choices []intake.Choice) (int64, error) {
	msg, err := m.client.SendMessage(ctx, chatID, text, keyboard(choices))
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (m *BotMessenger) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	return m.client.EditMessageText(ctx, chatID, messageID, text, nil)
}

func (m *BotMessenger) EditChoices(ctx context.Context, chatID, messageID int64, text string, choices []intake.Choice) error {
	return m.client.EditMessageText(ctx, chatID, messageID, text, keyboard(choices))
}

// keyboard lays out one button per row, matching how prompts read best
// on narrow screens.
func keyboard(choices []intake.Choice) *InlineKeyboardMarkup {
	rows := make([][]InlineKeyboardButton, 0, len(choices))
	for _, ch := range choices {
		rows = append(rows, []InlineKeyboardButton{{Text: ch.Label, CallbackData: ch.ID}})
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}
