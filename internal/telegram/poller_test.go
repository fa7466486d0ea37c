package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/osnovaresurs/leadbot/internal/intake"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []intake.Event
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, ev intake.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatcher) Wait() {}

func (d *recordingDispatcher) snapshot() []intake.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]intake.Event(nil), d.events...)
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text string
		cmd  string
		ok   bool
	}{
		{"/start", "start", true},
		{"/start@OsnovaResursBot", "start", true},
		{"/start again", "start", true},
		{"привет", "", false},
		{"/", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		cmd, ok := parseCommand(tc.text)
		if cmd != tc.cmd || ok != tc.ok {
			t.Fatalf("parseCommand(%q) = %q, %v; want %q, %v", tc.text, cmd, ok, tc.cmd, tc.ok)
		}
	}
}

func TestPollerConvertsUpdates(t *testing.T) {
	var (
		mu       sync.Mutex
		offsets  []int64
		answered []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot123:test-token/getUpdates":
			var req getUpdatesRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			mu.Lock()
			offsets = append(offsets, req.Offset)
			first := len(offsets) == 1
			mu.Unlock()
			if !first {
				writeResult(t, w, []Update{})
				return
			}
			writeResult(t, w, []Update{
				{UpdateID: 500, Message: &Message{MessageID: 1, From: &User{ID: 42, FirstName: "Иван"}, Chat: Chat{ID: 42}, Text: "/start"}},
				{UpdateID: 501, Message: &Message{MessageID: 2, From: &User{ID: 42, FirstName: "Иван"}, Chat: Chat{ID: 42}, Text: "ул. Ленина 5"}},
				{UpdateID: 502, CallbackQuery: &CallbackQuery{ID: "cb1", From: User{ID: 42, FirstName: "Иван"}, Data: "consent_agree"}},
			})
		case "/bot123:test-token/answerCallbackQuery":
			var req answerCallbackQueryRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			mu.Lock()
			answered = append(answered, req.CallbackQueryID)
			mu.Unlock()
			writeResult(t, w, true)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	dispatcher := &recordingDispatcher{}
	poller := NewPoller(client, dispatcher, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := poller.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	events := dispatcher.snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != intake.EventCommand || events[0].Command != intake.CommandStart {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Kind != intake.EventText || events[1].Text != "ул. Ленина 5" || events[1].DisplayName != "Иван" {
		t.Fatalf("unexpected second event %+v", events[1])
	}
	if events[2].Kind != intake.EventChoice || events[2].Choice != "consent_agree" || events[2].UserID != 42 {
		t.Fatalf("unexpected third event %+v", events[2])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(offsets) < 2 || offsets[1] != 503 {
		t.Fatalf("expected next poll at offset 503, got %v", offsets)
	}
	if len(answered) != 1 || answered[0] != "cb1" {
		t.Fatalf("expected callback cb1 acknowledged, got %v", answered)
	}
}

func TestKeyboardLayout(t *testing.T) {
	markup := keyboard([]intake.Choice{
		{Label: "Да", ID: "confirm_yes"},
		{Label: "Нет", ID: "confirm_no"},
	})
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected one row per choice, got %d", len(markup.InlineKeyboard))
	}
	if markup.InlineKeyboard[0][0].CallbackData != "confirm_yes" {
		t.Fatalf("unexpected callback data %q", markup.InlineKeyboard[0][0].CallbackData)
	}
}
