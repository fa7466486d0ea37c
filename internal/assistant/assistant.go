package assistant

import (
	"context"
	"errors"
)

// systemPrompt constrains the hosted assistant to information gathering only.
const systemPrompt = `Ты — AI-ассистент компании «ОСНОВА-РЕСУРС».

ТВОЯ ЗАДАЧА: собрать конкретную информацию от клиента и передать менеджеру.

ПРАВИЛА:
1. НИКОГДА не рассчитывай стоимость
2. НИКОГДА не придумывай цены, имена, детали
3. Только собирай информацию по шаблону
4. После сбора всей информации - передай заявку менеджеру

ШАБЛОН информации для сбора:
- Адрес доставки
- Необходимое количество газа (литров/тонн)
- Контактный телефон

После сбора этих 3 пунктов - заявка готова.`

// ErrTimeout reports that the hosted assistant did not finish within the
// configured wait. Callers show a retry-later message instead of hanging.
var ErrTimeout = errors.New("assistant: run did not complete in time")

// Client produces a free-form reply for text that matched no wizard step.
// Implementations may keep per-user conversational state; Reset drops it
// when the user restarts the intake.
type Client interface {
	Reply(ctx context.Context, userID int64, text string) (string, error)
	Reset(ctx context.Context, userID int64) error
}
