package intake

import (
	"context"
	"errors"
	"time"

	"github.com/osnovaresurs/leadbot/internal/assistant"
	"github.com/osnovaresurs/leadbot/internal/observability/metrics"
	"github.com/osnovaresurs/leadbot/internal/session"
	"github.com/osnovaresurs/leadbot/pkg/logging"
)

// Messenger sends prompts back to the user. Implementations adapt a chat
// platform's send/edit primitives.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	SendChoices(ctx context.Context, chatID int64, text string, choices []Choice) (int64, error)
	EditText(ctx context.Context, chatID, messageID int64, text string) error
	EditChoices(ctx context.Context, chatID, messageID int64, text string, choices []Choice) error
}

// HandoffSender forwards a completed intake record to the operator.
type HandoffSender interface {
	Send(ctx context.Context, userID int64, displayName string, rec session.Intake) error
}

// Controller drives the per-user intake state machine. It owns all reads
// and writes of sessions and intake records.
type Controller struct {
	store         session.Store
	messenger     Messenger
	handoff       HandoffSender
	assistant     assistant.Client
	assistantName string
	metrics       *metrics.BotMetrics
	logger        *logging.Logger
}

// Option customizes controller behavior.
type Option func(*Controller)

// WithAssistant enables the free-text fallback. The name is used as the
// provider label on metrics.
func WithAssistant(client assistant.Client, name string) Option {
	return func(c *Controller) {
		c.assistant = client
		c.assistantName = name
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.BotMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController creates the conversation controller.
func NewController(store session.Store, messenger Messenger, handoff HandoffSender, opts ...Option) *Controller {
	if store == nil {
		panic("intake: session store cannot be nil")
	}
	if messenger == nil {
		panic("intake: messenger cannot be nil")
	}
	if handoff == nil {
		panic("intake: handoff sender cannot be nil")
	}
	c := &Controller{
		store:     store,
		messenger: messenger,
		handoff:   handoff,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle processes one inbound event. Faults never escape: panics and
// errors are logged and surfaced to the user as a generic processing
// error, leaving the session untouched so the same step can be retried.
func (c *Controller) Handle(ctx context.Context, ev Event) {
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			c.logger.Error("panic while handling event", "user_id", ev.UserID, "kind", ev.Kind, "panic", r)
			c.sendBestEffort(ctx, ev.UserID, processingErrorText)
		}
		c.metrics.ObserveEvent(string(ev.Kind), status)
	}()

	if err := c.handle(ctx, ev); err != nil {
		status = "error"
		c.logger.Error("failed to handle event", "user_id", ev.UserID, "kind", ev.Kind, "error", err)
		c.sendBestEffort(ctx, ev.UserID, processingErrorText)
	}
}

func (c *Controller) handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventCommand:
		if ev.Command == CommandStart {
			return c.handleStart(ctx, ev)
		}
		// unknown commands fall through to the free-text hint
		return c.handleUnmatched(ctx, ev, 0)
	case EventChoice:
		return c.handleChoice(ctx, ev)
	case EventText:
		return c.handleText(ctx, ev)
	default:
		return nil
	}
}

// handleStart resets the conversation from any prior step.
func (c *Controller) handleStart(ctx context.Context, ev Event) error {
	if err := c.store.Reset(ctx, ev.UserID); err != nil {
		return err
	}
	if c.assistant != nil {
		if err := c.assistant.Reset(ctx, ev.UserID); err != nil {
			c.logger.Warn("failed to reset assistant thread", "user_id", ev.UserID, "error", err)
		}
	}
	if err := c.store.Set(ctx, ev.UserID, session.Default()); err != nil {
		return err
	}
	_, err := c.messenger.SendChoices(ctx, ev.UserID, welcomeText(ev.DisplayName), consentChoices())
	return err
}

// handleChoice matches choice events purely by identifier. Identifiers
// from stale keyboards that are no longer recognized are dropped without
// a reply so old messages cannot spam the user.
func (c *Controller) handleChoice(ctx context.Context, ev Event) error {
	sess, err := c.store.Get(ctx, ev.UserID)
	if err != nil {
		c.logger.Warn("failed to load session, using default", "user_id", ev.UserID, "error", err)
	}

	switch ev.Choice {
	case ChoiceConsentAgree:
		sess = session.Session{Step: session.StepAwaitingServiceChoice, Consented: true}
		if err := c.store.Set(ctx, ev.UserID, sess); err != nil {
			return err
		}
		_, err := c.messenger.SendChoices(ctx, ev.UserID, consentAgreedText, serviceChoices())
		return err

	case ChoiceConsentDisagree:
		_, err := c.messenger.SendText(ctx, ev.UserID, consentDeclinedText)
		return err

	case ChoiceServiceGasgolder:
		return c.selectService(ctx, ev, sess, session.ServiceGasgolder, LabelGasgolder, gasgolderAddressPrompt)

	case ChoiceServiceStation:
		return c.selectService(ctx, ev, sess, session.ServiceStation, LabelStation, stationAddressPrompt)

	case ChoiceConfirmYes:
		return c.confirm(ctx, ev)

	case ChoiceConfirmNo:
		sess.Step = session.StepAwaitingAddress
		if err := c.store.Set(ctx, ev.UserID, sess); err != nil {
			return err
		}
		_, err := c.messenger.SendText(ctx, ev.UserID, correctionPrompt)
		return err

	default:
		c.logger.Debug("ignoring unrecognized choice", "user_id", ev.UserID, "choice", ev.Choice)
		return nil
	}
}

func (c *Controller) selectService(ctx context.Context, ev Event, sess session.Session, svc session.Service, label, prompt string) error {
	sess.Step = session.StepAwaitingAddress
	sess.Service = svc
	if err := c.store.Set(ctx, ev.UserID, sess); err != nil {
		return err
	}

	rec, err := c.store.GetIntake(ctx, ev.UserID)
	if err != nil {
		c.logger.Warn("failed to load intake, starting empty", "user_id", ev.UserID, "error", err)
	}
	rec.ServiceLabel = label
	if err := c.store.SetIntake(ctx, ev.UserID, rec); err != nil {
		return err
	}

	_, err = c.messenger.SendText(ctx, ev.UserID, prompt)
	return err
}

// confirm forwards the record to the operator. Delivery failure keeps
// the record so the user can try again; success clears it for the next
// request.
func (c *Controller) confirm(ctx context.Context, ev Event) error {
	rec, err := c.store.GetIntake(ctx, ev.UserID)
	if err != nil {
		return err
	}

	if err := c.handoff.Send(ctx, ev.UserID, ev.DisplayName, rec); err != nil {
		c.metrics.ObserveHandoff("failed")
		c.logger.Error("handoff delivery failed", "user_id", ev.UserID, "error", err)
		_, sendErr := c.messenger.SendText(ctx, ev.UserID, handoffFailedText)
		return sendErr
	}

	c.metrics.ObserveHandoff("sent")
	if err := c.store.SetIntake(ctx, ev.UserID, session.Intake{}); err != nil {
		c.logger.Warn("failed to clear intake after handoff", "user_id", ev.UserID, "error", err)
	}
	_, err = c.messenger.SendText(ctx, ev.UserID, handoffSuccessText(ev.UserID))
	return err
}

// handleText first posts a progress message, then edits it into the next
// prompt so every wizard answer yields exactly one visible reply.
func (c *Controller) handleText(ctx context.Context, ev Event) error {
	sess, err := c.store.Get(ctx, ev.UserID)
	if err != nil {
		c.logger.Warn("failed to load session, using default", "user_id", ev.UserID, "error", err)
	}

	statusID, err := c.messenger.SendText(ctx, ev.UserID, savingStatusText)
	if err != nil {
		return err
	}

	switch sess.Step {
	case session.StepAwaitingAddress:
		return c.storeField(ctx, ev, sess, statusID, session.StepAwaitingQuantity, quantityPrompt, func(rec *session.Intake) {
			rec.Address = ev.Text
		})

	case session.StepAwaitingQuantity:
		return c.storeField(ctx, ev, sess, statusID, session.StepAwaitingPhone, phonePrompt, func(rec *session.Intake) {
			rec.Quantity = ev.Text
		})

	case session.StepAwaitingPhone:
		return c.finishForm(ctx, ev, sess, statusID)

	default:
		return c.handleUnmatched(ctx, ev, statusID)
	}
}

func (c *Controller) storeField(ctx context.Context, ev Event, sess session.Session, statusID int64, next session.Step, prompt string, apply func(*session.Intake)) error {
	rec, err := c.store.GetIntake(ctx, ev.UserID)
	if err != nil {
		c.logger.Warn("failed to load intake, starting empty", "user_id", ev.UserID, "error", err)
	}
	apply(&rec)
	if err := c.store.SetIntake(ctx, ev.UserID, rec); err != nil {
		return err
	}

	sess.Step = next
	if err := c.store.Set(ctx, ev.UserID, sess); err != nil {
		return err
	}
	return c.messenger.EditText(ctx, ev.UserID, statusID, prompt)
}

func (c *Controller) finishForm(ctx context.Context, ev Event, sess session.Session, statusID int64) error {
	rec, err := c.store.GetIntake(ctx, ev.UserID)
	if err != nil {
		c.logger.Warn("failed to load intake, starting empty", "user_id", ev.UserID, "error", err)
	}
	rec.Phone = ev.Text
	if err := c.store.SetIntake(ctx, ev.UserID, rec); err != nil {
		return err
	}

	sess.Step = session.StepAwaitingConfirmation
	if err := c.store.Set(ctx, ev.UserID, sess); err != nil {
		return err
	}
	return c.messenger.EditChoices(ctx, ev.UserID, statusID, confirmationText(rec), confirmationChoices())
}

// handleUnmatched covers text that matched no wizard step. With an
// assistant configured the text is delegated; otherwise the user gets a
// hint to run /start. The session step never changes here.
func (c *Controller) handleUnmatched(ctx context.Context, ev Event, statusID int64) error {
	reply := startHintText
	if c.assistant != nil {
		start := time.Now()
		answer, err := c.assistant.Reply(ctx, ev.UserID, ev.Text)
		if err != nil {
			c.metrics.ObserveAssistant(c.assistantName, "error", time.Since(start).Seconds())
			if errors.Is(err, assistant.ErrTimeout) {
				c.logger.Warn("assistant timed out", "user_id", ev.UserID)
			} else {
				c.logger.Error("assistant request failed", "user_id", ev.UserID, "error", err)
			}
			reply = assistantFailedText
		} else {
			c.metrics.ObserveAssistant(c.assistantName, "ok", time.Since(start).Seconds())
			reply = answer
		}
	}

	if statusID != 0 {
		return c.messenger.EditText(ctx, ev.UserID, statusID, reply)
	}
	_, err := c.messenger.SendText(ctx, ev.UserID, reply)
	return err
}

func (c *Controller) sendBestEffort(ctx context.Context, chatID int64, text string) {
	if _, err := c.messenger.SendText(ctx, chatID, text); err != nil {
		c.logger.Error("failed to deliver error message", "user_id", chatID, "error", err)
	}
}
