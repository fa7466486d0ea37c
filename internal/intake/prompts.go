package intake

import (
	"fmt"

	"github.com/osnovaresurs/leadbot/internal/session"
)

// Choice is one labeled option offered to the user.
type Choice struct {
	Label string
	ID    string
}

// Human-readable service labels stored on the intake record.
const (
	LabelGasgolder = "Заправка газгольдера"
	LabelStation   = "Доставка на АГЗС"
)

func consentChoices() []Choice {
	return []Choice{
		{Label: "✅ Согласен", ID: ChoiceConsentAgree},
		{Label: "❌ Не согласен", ID: ChoiceConsentDisagree},
	}
}

func serviceChoices() []Choice {
	return []Choice{
		{Label: "🚗 Заправить газгольдер", ID: ChoiceServiceGasgolder},
		{Label: "🏭 Доставка на АГЗС", ID: ChoiceServiceStation},
	}
}

func confirmationChoices() []Choice {
	return []Choice{
		{Label: "✅ Всё верно, отправить заявку", ID: ChoiceConfirmYes},
		{Label: "✏️ Исправить данные", ID: ChoiceConfirmNo},
	}
}

func welcomeText(name string) string {
	return fmt.Sprintf(`👋 Добро пожаловать, %s!

Говорит представитель компании «ОСНОВА-РЕСУРС».

Мы помогаем с надежными поставками пропан-бутана для бизнеса и частных лиц.

Прежде чем продолжить, для соблюдения законодательства РФ, мне необходимо ваше согласие на обработку персональных данных.`, name)
}

const consentAgreedText = "✅ Спасибо за доверие!\n\n" +
	"Выберите подходящую услугу:"

const consentDeclinedText = "Я понимаю. Без вашего согласия я не могу обработать заявку. " +
	"Если возникнут вопросы - обращайтесь. Хорошего дня!"

const gasgolderAddressPrompt = "🚗 Вы выбрали заправку газгольдера.\n\n" +
	"📍 Шаг 1 из 3: Укажите ваш полный адрес для доставки:\n" +
	"• Населенный пункт\n" +
	"• Улица, дом\n" +
	"• Район\n\n" +
	"Например: деревня Дурыкино, Солнечногорский район, ул. Центральная, д. 10"

const stationAddressPrompt = "🏭 Вы выбрали доставку на АГЗС.\n\n" +
	"📍 Шаг 1 из 3: Укажите адрес АГЗС:\n" +
	"• Населенный пункт\n" +
	"• Адрес АГЗС\n" +
	"• Район\n\n" +
	"Например: г. Солнечногорск, ул. Промышленная, АГЗС №5"

const savingStatusText = "⏳ Сохраняю информацию..."

const quantityPrompt = "✅ Адрес сохранен!\n\n" +
	"⚡ Шаг 2 из 3: Укажите необходимое количество газа:\n" +
	"• Для газгольдера: сколько литров нужно заправить\n" +
	"• Для АГЗС: сколько тонн/литров требуется\n\n" +
	"Например: 5000 литров или 2 тонны"

const phonePrompt = "✅ Количество газа сохранено!\n\n" +
	"📞 Шаг 3 из 3: Укажите ваш контактный телефон:\n" +
	"• Номер для связи\n" +
	"• В любом формате\n\n" +
	"Например: +7 999 123-45-67 или 89991234567"

const correctionPrompt = "Давайте исправим данные. Начнем с адреса:\n\n" +
	"📍 Укажите ваш полный адрес:"

func summaryText(rec session.Intake) string {
	return fmt.Sprintf(`
📋 Сводка заявки:

📍 Адрес: %s
⚡ Количество газа: %s
📞 Телефон: %s
🎯 Услуга: %s
`,
		orPlaceholder(rec.Address, "не указан"),
		orPlaceholder(rec.Quantity, "не указано"),
		orPlaceholder(rec.Phone, "не указан"),
		orPlaceholder(rec.ServiceLabel, "не указана"))
}

func confirmationText(rec session.Intake) string {
	return summaryText(rec) + "\n\n" +
		"Проверьте правильность данных и отправьте заявку менеджеру:"
}

func handoffSuccessText(userID int64) string {
	return fmt.Sprintf("✅ Отлично! Ваша заявка принята и передана менеджеру.\n\n"+
		"📋 Номер заявки: #%d\n"+
		"📞 Наш менеджер свяжется с вами в ближайшее время для уточнения деталей.\n\n"+
		"Спасибо за выбор «ОСНОВА-РЕСУРС»! 🚚", userID)
}

const handoffFailedText = "❌ Произошла ошибка при отправке заявки. Пожалуйста, позвоните нам напрямую."

const startHintText = "Для начала работы отправьте команду /start\n" +
	"Я помогу оформить заявку на доставку газа."

const assistantFailedText = "Ошибка при обработке запроса. Попробуйте позже."

const processingErrorText = "❌ Ошибка обработки. Попробуйте позже."

func orPlaceholder(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}
