package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osnovaresurs/leadbot/internal/assistant"
	"github.com/osnovaresurs/leadbot/internal/session"
)

type renderedMessage struct {
	id      int64
	chatID  int64
	text    string
	choices []Choice
}

type fakeMessenger struct {
	mu          sync.Mutex
	nextID      int64
	messages    []renderedMessage
	lastTouched int
	delay       time.Duration
	inFlight    int32
	maxInFlight int32
}

func (m *fakeMessenger) record(chatID int64, text string, choices []Choice) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.messages = append(m.messages, renderedMessage{id: m.nextID, chatID: chatID, text: text, choices: choices})
	m.lastTouched = len(m.messages) - 1
	return m.nextID
}

func (m *fakeMessenger) edit(messageID int64, text string, choices []Choice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].id == messageID {
			m.messages[i].text = text
			m.messages[i].choices = choices
			m.lastTouched = i
			return nil
		}
	}
	return errors.New("message not found")
}

func (m *fakeMessenger) observeConcurrency() {
	if m.delay == 0 {
		return
	}
	n := atomic.AddInt32(&m.inFlight, 1)
	for {
		max := atomic.LoadInt32(&m.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&m.maxInFlight, max, n) {
			break
		}
	}
	time.Sleep(m.delay)
	atomic.AddInt32(&m.inFlight, -1)
}

func (m *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	m.observeConcurrency()
	return m.record(chatID, text, nil), nil
}

func (m *fakeMessenger) SendChoices(ctx context.Context, chatID int64, text string, choices []Choice) (int64, error) {
	m.observeConcurrency()
	return m.record(chatID, text, choices), nil
}

func (m *fakeMessenger) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	m.observeConcurrency()
	return m.edit(messageID, text, nil)
}

func (m *fakeMessenger) EditChoices(ctx context.Context, chatID, messageID int64, text string, choices []Choice) error {
	m.observeConcurrency()
	return m.edit(messageID, text, choices)
}

func (m *fakeMessenger) last() renderedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return renderedMessage{}
	}
	return m.messages[m.lastTouched]
}

func (m *fakeMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type handoffCall struct {
	userID int64
	name   string
	rec    session.Intake
}

type fakeHandoff struct {
	mu      sync.Mutex
	calls   []handoffCall
	err     error
	panicOn bool
}

func (h *fakeHandoff) Send(ctx context.Context, userID int64, displayName string, rec session.Intake) error {
	if h.panicOn {
		panic("handoff exploded")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, handoffCall{userID: userID, name: displayName, rec: rec})
	return h.err
}

func (h *fakeHandoff) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type fakeAssistant struct {
	reply  string
	err    error
	asked  []string
	resets int
}

func (a *fakeAssistant) Reply(ctx context.Context, userID int64, text string) (string, error) {
	a.asked = append(a.asked, text)
	if a.err != nil {
		return "", a.err
	}
	return a.reply, nil
}

func (a *fakeAssistant) Reset(ctx context.Context, userID int64) error {
	a.resets++
	return nil
}

var _ assistant.Client = (*fakeAssistant)(nil)

func newTestController(t *testing.T, opts ...Option) (*Controller, *session.MemoryStore, *fakeMessenger, *fakeHandoff) {
	t.Helper()
	store := session.NewMemoryStore()
	messenger := &fakeMessenger{}
	handoff := &fakeHandoff{}
	ctrl := NewController(store, messenger, handoff, opts...)
	return ctrl, store, messenger, handoff
}

const testUser int64 = 42

func sendText(ctrl *Controller, text string) {
	ctrl.Handle(context.Background(), Event{Kind: EventText, UserID: testUser, DisplayName: "Иван", Text: text})
}

func sendChoice(ctrl *Controller, choice string) {
	ctrl.Handle(context.Background(), Event{Kind: EventChoice, UserID: testUser, DisplayName: "Иван", Choice: choice})
}

func sendStart(ctrl *Controller) {
	ctrl.Handle(context.Background(), Event{Kind: EventCommand, UserID: testUser, DisplayName: "Иван", Command: CommandStart})
}

func mustStep(t *testing.T, store session.Store, want session.Step) {
	t.Helper()
	sess, err := store.Get(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if sess.Step != want {
		t.Fatalf("expected step %q, got %q", want, sess.Step)
	}
}

func TestStartSendsConsentKeyboard(t *testing.T) {
	ctrl, store, messenger, _ := newTestController(t)

	sendStart(ctrl)

	mustStep(t, store, session.StepAwaitingConsent)
	last := messenger.last()
	if !strings.Contains(last.text, "Иван") {
		t.Fatalf("welcome should greet the user by name, got %q", last.text)
	}
	if len(last.choices) != 2 {
		t.Fatalf("expected 2 consent choices, got %d", len(last.choices))
	}
	if last.choices[0].ID != ChoiceConsentAgree || last.choices[1].ID != ChoiceConsentDisagree {
		t.Fatalf("unexpected consent choice ids: %+v", last.choices)
	}
}

func TestStartResetsEverything(t *testing.T) {
	asst := &fakeAssistant{reply: "ответ"}
	ctrl, store, _, _ := newTestController(t, WithAssistant(asst, "test"))
	ctx := context.Background()

	if err := store.Set(ctx, testUser, session.Session{Step: session.StepAwaitingPhone, Service: session.ServiceGasgolder, Consented: true}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := store.SetIntake(ctx, testUser, session.Intake{Address: "old"}); err != nil {
		t.Fatalf("seed intake: %v", err)
	}

	sendStart(ctrl)

	mustStep(t, store, session.StepAwaitingConsent)
	rec, err := store.GetIntake(ctx, testUser)
	if err != nil {
		t.Fatalf("GetIntake: %v", err)
	}
	if !rec.Empty() {
		t.Fatalf("intake should be cleared after restart, got %+v", rec)
	}
	if asst.resets != 1 {
		t.Fatalf("expected 1 assistant reset, got %d", asst.resets)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	ctrl, store, messenger, _ := newTestController(t)

	sendStart(ctrl)
	sendStart(ctrl)

	mustStep(t, store, session.StepAwaitingConsent)
	if messenger.count() != 2 {
		t.Fatalf("expected a welcome per /start, got %d messages", messenger.count())
	}
}

func TestHappyPathProducesSingleHandoff(t *testing.T) {
	ctrl, store, messenger, handoff := newTestController(t)

	sendStart(ctrl)
	sendChoice(ctrl, ChoiceConsentAgree)
	mustStep(t, store, session.StepAwaitingServiceChoice)

	sendChoice(ctrl, ChoiceServiceGasgolder)
	mustStep(t, store, session.StepAwaitingAddress)

	sendText(ctrl, "ул. Ленина 5")
	mustStep(t, store, session.StepAwaitingQuantity)

	sendText(ctrl, "5000 литров")
	mustStep(t, store, session.StepAwaitingPhone)

	sendText(ctrl, "+79991234567")
	mustStep(t, store, session.StepAwaitingConfirmation)

	summary := messenger.last()
	for _, want := range []string{"ул. Ленина 5", "5000 литров", "+79991234567", LabelGasgolder} {
		if !strings.Contains(summary.text, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary.text)
		}
	}
	if len(summary.choices) != 2 {
		t.Fatalf("expected confirm/correct choices, got %+v", summary.choices)
	}

	sendChoice(ctrl, ChoiceConfirmYes)

	if handoff.callCount() != 1 {
		t.Fatalf("expected exactly one handoff, got %d", handoff.callCount())
	}
	call := handoff.calls[0]
	if call.userID != testUser || call.name != "Иван" {
		t.Fatalf("unexpected handoff identity: %+v", call)
	}
	want := session.Intake{Address: "ул. Ленина 5", Quantity: "5000 литров", Phone: "+79991234567", ServiceLabel: LabelGasgolder}
	if call.rec != want {
		t.Fatalf("unexpected handoff record: %+v", call.rec)
	}

	mustStep(t, store, session.StepAwaitingConfirmation)
	rec, err := store.GetIntake(context.Background(), testUser)
	if err != nil {
		t.Fatalf("GetIntake: %v", err)
	}
	if !rec.Empty() {
		t.Fatalf("intake should be cleared after delivery, got %+v", rec)
	}
}

func TestStationServiceLabel(t *testing.T) {
	ctrl, store, _, handoff := newTestController(t)

	sendStart(ctrl)
	sendChoice(ctrl, ChoiceConsentAgree)
	sendChoice(ctrl, ChoiceServiceStation)
	sendText(ctrl, "трасса М4, 120 км")
	sendText(ctrl, "10 тонн")
	sendText(ctrl, "+79990000000")
	sendChoice(ctrl, ChoiceConfirmYes)

	if handoff.callCount() != 1 {
		t.Fatalf("expected one handoff, got %d", handoff.callCount())
	}
	if handoff.calls[0].rec.ServiceLabel != LabelStation {
		t.Fatalf("expected %q, got %q", LabelStation, handoff.calls[0].rec.ServiceLabel)
	}
	sess, _ := store.Get(context.Background(), testUser)
	if sess.Service != session.ServiceStation {
		t.Fatalf("expected service %q, got %q", session.ServiceStation, sess.Service)
	}
}

func TestCorrectionPreservesEnteredValues(t *testing.T) {
	ctrl, store, messenger, handoff := newTestController(t)
	ctx := context.Background()

	sendStart(ctrl)
	sendChoice(ctrl, ChoiceConsentAgree)
	sendChoice(ctrl, ChoiceServiceGasgolder)
	sendText(ctrl, "ул. Ленина 5")
	sendText(ctrl, "5000 литров")
	sendText(ctrl, "+79991234567")

	sendChoice(ctrl, ChoiceConfirmNo)
	mustStep(t, store, session.StepAwaitingAddress)
	if messenger.last().text != correctionPrompt {
		t.Fatalf("expected correction prompt, got %q", messenger.last().text)
	}

	rec, err := store.GetIntake(ctx, testUser)
	if err != nil {
		t.Fatalf("GetIntake: %v", err)
	}
	if rec.Address != "ул. Ленина 5" || rec.Quantity != "5000 литров" || rec.Phone != "+79991234567" {
		t.Fatalf("correction must preserve values, got %+v", rec)
	}

	// a second pass overwrites all three fields
	sendText(ctrl, "пр. Мира 10")
	sendText(ctrl, "3000 литров")
	sendText(ctrl, "+79997654321")
	sendChoice(ctrl, ChoiceConfirmYes)

	if handoff.callCount() != 1 {
		t.Fatalf("expected one handoff, got %d", handoff.callCount())
	}
	got := handoff.calls[0].rec
	if got.Address != "пр. Мира 10" || got.Quantity != "3000 литров" || got.Phone != "+79997654321" {
		t.Fatalf("handoff should carry last-written values, got %+v", got)
	}
}

func TestConsentDeclineLeavesSessionAtConsent(t *testing.T) {
	ctrl, store, messenger, _ := newTestController(t)

	sendStart(ctrl)
	sendChoice(ctrl, ChoiceConsentDisagree)

	mustStep(t, store, session.StepAwaitingConsent)
	if messenger.last().text != consentDeclinedText {
		t.Fatalf("expected decline message, got %q", messenger.last().text)
	}
	rec, _ := store.GetIntake(context.Background(), testUser)
	if !rec.Empty() {
		t.Fatalf("decline must not write intake data, got %+v", rec)
	}
}

func TestUnrecognizedChoiceIsIgnored(t *testing.T) {
	ctrl, store, messenger, handoff := newTestController(t)

	sendStart(ctrl)
	before := messenger.count()

	sendChoice(ctrl, "service_helium")

	if messenger.count() != before {
		t.Fatalf("stale choice must not produce a reply, got %q", messenger.last().text)
	}
	if handoff.callCount() != 0 {
		t.Fatalf("stale choice must not trigger handoff")
	}
	mustStep(t, store, session.StepAwaitingConsent)
}

func TestFreeTextDelegatesToAssistant(t *testing.T) {
	asst := &fakeAssistant{reply: "Газгольдер — это резервуар для сжиженного газа."}
	ctrl, store, messenger, _ := newTestController(t, WithAssistant(asst, "test"))

	sendStart(ctrl)
	sendText(ctrl, "что такое газгольдер?")

	mustStep(t, store, session.StepAwaitingConsent)
	if len(asst.asked) != 1 || asst.asked[0] != "что такое газгольдер?" {
		t.Fatalf("assistant should receive the raw text, got %v", asst.asked)
	}
	if messenger.last().text != asst.reply {
		t.Fatalf("expected assistant reply, got %q", messenger.last().text)
	}
}

func TestFreeTextWithoutAssistantHintsStart(t *testing.T) {
	ctrl, _, messenger, _ := newTestController(t)

	sendText(ctrl, "привет")

	if messenger.last().text != startHintText {
		t.Fatalf("expected /start hint, got %q", messenger.last().text)
	}
}

func TestAssistantFailureShowsGenericError(t *testing.T) {
	for name, failure := range map[string]error{
		"timeout": assistant.ErrTimeout,
		"other":   errors.New("boom"),
	} {
		t.Run(name, func(t *testing.T) {
			asst := &fakeAssistant{err: failure}
			ctrl, store, messenger, _ := newTestController(t, WithAssistant(asst, "test"))

			sendStart(ctrl)
			sendText(ctrl, "вопрос")

			if messenger.last().text != assistantFailedText {
				t.Fatalf("expected assistant error message, got %q", messenger.last().text)
			}
			mustStep(t, store, session.StepAwaitingConsent)
		})
	}
}

func TestHandoffFailureKeepsRecordForRetry(t *testing.T) {
	ctrl, store, messenger, handoff := newTestController(t)
	handoff.err = errors.New("channel unavailable")

	sendStart(ctrl)
	sendChoice(ctrl, ChoiceConsentAgree)
	sendChoice(ctrl, ChoiceServiceGasgolder)
	sendText(ctrl, "ул. Ленина 5")
	sendText(ctrl, "5000 литров")
	sendText(ctrl, "+79991234567")

	sendChoice(ctrl, ChoiceConfirmYes)

	if messenger.last().text != handoffFailedText {
		t.Fatalf("expected failure message, got %q", messenger.last().text)
	}
	mustStep(t, store, session.StepAwaitingConfirmation)
	rec, _ := store.GetIntake(context.Background(), testUser)
	if rec.Empty() {
		t.Fatalf("record must survive a failed handoff for retry")
	}

	handoff.err = nil
	sendChoice(ctrl, ChoiceConfirmYes)
	if handoff.callCount() != 2 {
		t.Fatalf("expected retry to reach the handoff sender, got %d calls", handoff.callCount())
	}
	if handoff.calls[1].rec.Address != "ул. Ленина 5" {
		t.Fatalf("retry should resend the same record, got %+v", handoff.calls[1].rec)
	}
}

func TestPanicIsRecoveredAndReported(t *testing.T) {
	ctrl, store, messenger, handoff := newTestController(t)
	handoff.panicOn = true

	sendStart(ctrl)
	sendChoice(ctrl, ChoiceConsentAgree)
	sendChoice(ctrl, ChoiceServiceGasgolder)
	sendText(ctrl, "ул. Ленина 5")
	sendText(ctrl, "5000 литров")
	sendText(ctrl, "+79991234567")

	sendChoice(ctrl, ChoiceConfirmYes) // must not propagate the panic

	if messenger.last().text != processingErrorText {
		t.Fatalf("expected generic processing error, got %q", messenger.last().text)
	}
	mustStep(t, store, session.StepAwaitingConfirmation)
}

func TestDispatcherSerializesPerUser(t *testing.T) {
	store := session.NewMemoryStore()
	messenger := &fakeMessenger{delay: 5 * time.Millisecond}
	ctrl := NewController(store, messenger, &fakeHandoff{})
	d := NewDispatcher(ctrl)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d.DispatchAsync(ctx, Event{Kind: EventText, UserID: testUser, Text: "привет"})
	}
	d.Wait()

	if max := atomic.LoadInt32(&messenger.maxInFlight); max != 1 {
		t.Fatalf("events for one user must be serialized, saw %d concurrent", max)
	}
}

func TestDispatcherAllowsConcurrentUsers(t *testing.T) {
	store := session.NewMemoryStore()
	messenger := &fakeMessenger{delay: 20 * time.Millisecond}
	ctrl := NewController(store, messenger, &fakeHandoff{})
	d := NewDispatcher(ctrl)
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		d.DispatchAsync(ctx, Event{Kind: EventText, UserID: i, Text: "привет"})
	}
	d.Wait()

	if max := atomic.LoadInt32(&messenger.maxInFlight); max < 2 {
		t.Fatalf("distinct users should be handled concurrently, saw %d", max)
	}
}
