//go:build !integration

package telegram

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/application"
	"telegram-ai-stars/internal/domain/ports/adapter"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	groups   int
	requests []tgbotapi.Chattable
	member   tgbotapi.ChatMember
	memberOf tgbotapi.GetChatMemberConfig
	updates  chan tgbotapi.Update

	RequestFunc func(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) SendMediaGroup(tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups++
	return nil, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, c)
	f.mu.Unlock()
	if f.RequestFunc != nil {
		return f.RequestFunc(c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	f.memberOf = cfg
	return f.member, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }
func (f *fakeAPI) StopReceivingUpdates()                                         {}

type recordingHandler struct {
	mu        sync.Mutex
	events    []application.Event
	invoiceOK bool
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev application.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *recordingHandler) ValidateInvoice(context.Context, application.Event) error {
	if h.invoiceOK {
		return nil
	}
	return errors.New("price changed")
}

// blockingHandler holds each event until release is closed.
type blockingHandler struct {
	started chan struct{}
	release chan struct{}
	done    chan struct{}
}

func (h *blockingHandler) HandleEvent(context.Context, application.Event) error {
	h.started <- struct{}{}
	<-h.release
	close(h.done)
	return nil
}

func (h *blockingHandler) ValidateInvoice(context.Context, application.Event) error { return nil }

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

func privateMessage(text string) *tgbotapi.Message {
	m := &tgbotapi.Message{
		MessageID: 3,
		From:      &tgbotapi.User{ID: 42, UserName: "ann", FirstName: "Ann"},
		Chat:      &tgbotapi.Chat{ID: 42, Type: "private"},
		Text:      text,
	}
	if len(text) > 0 && text[0] == '/' {
		end := len(text)
		for i, c := range text {
			if c == ' ' {
				end = i
				break
			}
		}
		m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return m
}

func TestToEvent(t *testing.T) {
	t.Run("should parse a command with arguments", func(t *testing.T) {
		ev, ok := toEvent(tgbotapi.Update{UpdateID: 9, Message: privateMessage("/start REF42")})
		if !ok || ev.Kind != application.EventCommand || ev.Command != "start" || ev.Args != "REF42" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.UserID != 42 || ev.Username != "ann" || ev.UpdateID != 9 {
			t.Errorf("unexpected identity %+v", ev)
		}
	})

	t.Run("should parse free text", func(t *testing.T) {
		ev, ok := toEvent(tgbotapi.Update{Message: privateMessage("a lighthouse")})
		if !ok || ev.Kind != application.EventText || ev.Text != "a lighthouse" {
			t.Errorf("unexpected event %+v", ev)
		}
	})

	t.Run("should ignore group chats", func(t *testing.T) {
		m := privateMessage("hi")
		m.Chat.Type = "group"
		if _, ok := toEvent(tgbotapi.Update{Message: m}); ok {
			t.Error("group message was accepted")
		}
	})

	t.Run("should parse a callback with its message", func(t *testing.T) {
		up := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID: "cb1", From: &tgbotapi.User{ID: 42}, Data: " nav:shop ",
			Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: 42}},
		}}
		ev, ok := toEvent(up)
		if !ok || ev.Kind != application.EventCallback || ev.Data != "nav:shop" || ev.MessageID != 77 || ev.CallbackID != "cb1" {
			t.Errorf("unexpected event %+v", ev)
		}
	})

	t.Run("should parse payments and pre-checkout queries", func(t *testing.T) {
		m := privateMessage("")
		m.SuccessfulPayment = &tgbotapi.SuccessfulPayment{Currency: "XTR", TotalAmount: 50, InvoicePayload: "stars50"}
		ev, ok := toEvent(tgbotapi.Update{Message: m})
		if !ok || ev.Kind != application.EventPayment || ev.Payload != "stars50" || ev.Amount != 50 {
			t.Errorf("unexpected payment %+v", ev)
		}

		up := tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{ID: "q", From: &tgbotapi.User{ID: 42}, TotalAmount: 600, InvoicePayload: "premium_month"}}
		ev, ok = toEvent(up)
		if !ok || ev.Kind != application.EventPreCheckout || ev.CallbackID != "q" || ev.Amount != 600 {
			t.Errorf("unexpected pre-checkout %+v", ev)
		}
	})
}

func TestKeyboard(t *testing.T) {
	if keyboard(nil) != nil || keyboard([][]adapter.InlineButton{{}}) != nil {
		t.Error("expected no markup for empty rows")
	}
	kb := keyboard([][]adapter.InlineButton{
		{{Text: "Open", URL: "https://t.me/news"}, {Text: "Back", Data: "back"}},
		{{Text: " "}},
	})
	if kb == nil || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("unexpected markup %+v", kb)
	}
	if u := kb.InlineKeyboard[0][0].URL; u == nil || *u != "https://t.me/news" {
		t.Error("url button lost its link")
	}
	if d := kb.InlineKeyboard[1][0].CallbackData; d == nil || *d != "•" {
		t.Error("blank label should fall back to a bullet")
	}
}

func TestRealTelegramBotAdapter_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("should send a text screen with its keyboard", func(t *testing.T) {
		api := &fakeAPI{}
		r := newAdapter(api, 2, "", nil, newTestLogger())
		ref, err := r.Deliver(ctx, 42, adapter.Screen{Text: "menu", Rows: [][]adapter.InlineButton{{{Text: "x", Data: "y"}}}})
		if err != nil || ref.MessageID != 1 {
			t.Fatalf("Deliver: %+v, %v", ref, err)
		}
		msg := api.sent[0].(tgbotapi.MessageConfig)
		if msg.Text != "menu" || msg.ReplyMarkup == nil {
			t.Errorf("unexpected message %+v", msg)
		}
	})

	t.Run("should caption a single photo with the screen", func(t *testing.T) {
		api := &fakeAPI{}
		r := newAdapter(api, 2, "", nil, newTestLogger())
		_, err := r.Deliver(ctx, 42, adapter.Screen{Text: "done", Media: &adapter.Media{PhotoURLs: []string{"https://img/1"}}})
		if err != nil {
			t.Fatalf("Deliver: %v", err)
		}
		if len(api.sent) != 1 {
			t.Fatalf("expected one photo, got %d sends", len(api.sent))
		}
		if p := api.sent[0].(tgbotapi.PhotoConfig); p.Caption != "done" {
			t.Errorf("unexpected caption %q", p.Caption)
		}
	})

	t.Run("should send an album and then the keyboard", func(t *testing.T) {
		api := &fakeAPI{}
		r := newAdapter(api, 2, "", nil, newTestLogger())
		urls := make([]string, 12)
		for i := range urls {
			urls[i] = "https://img/x"
		}
		_, err := r.Deliver(ctx, 42, adapter.Screen{Text: "done", Media: &adapter.Media{PhotoURLs: urls}})
		if err != nil {
			t.Fatalf("Deliver: %v", err)
		}
		if api.groups != 2 || len(api.sent) != 1 {
			t.Errorf("expected two albums and a trailer, got %d and %d", api.groups, len(api.sent))
		}
	})
}

func TestRealTelegramBotAdapter_Edit(t *testing.T) {
	api := &fakeAPI{RequestFunc: func(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
		return nil, &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}
	}}
	r := newAdapter(api, 1, "", nil, newTestLogger())
	if err := r.Edit(context.Background(), adapter.MessageRef{ChatID: 1, MessageID: 2}, adapter.Screen{Text: "same"}); err != nil {
		t.Errorf("unchanged edit should succeed, got %v", err)
	}
	if err := r.Edit(context.Background(), adapter.MessageRef{}, adapter.Screen{Media: &adapter.Media{}}); err == nil {
		t.Error("media screens must not be edited")
	}
}

func TestRealTelegramBotAdapter_SendInvoice(t *testing.T) {
	api := &fakeAPI{}
	r := newAdapter(api, 1, "", nil, newTestLogger())
	if err := r.SendInvoice(context.Background(), 42, adapter.Invoice{Payload: "stars50", Title: "50 Stars", Amount: 50}); err != nil {
		t.Fatalf("SendInvoice: %v", err)
	}
	inv := api.sent[0].(tgbotapi.InvoiceConfig)
	if inv.Currency != "XTR" || inv.ProviderToken != "" || inv.Prices[0].Amount != 50 || inv.SuggestedTipAmounts == nil {
		t.Errorf("unexpected invoice %+v", inv)
	}
}

func TestRealTelegramBotAdapter_IsSubscribed(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		member tgbotapi.ChatMember
		want   bool
	}{
		{"member", tgbotapi.ChatMember{Status: "member"}, true},
		{"creator", tgbotapi.ChatMember{Status: "creator"}, true},
		{"left", tgbotapi.ChatMember{Status: "left"}, false},
		{"restricted member", tgbotapi.ChatMember{Status: "restricted", IsMember: true}, true},
		{"kicked", tgbotapi.ChatMember{Status: "kicked"}, false},
	}
	for _, tc := range cases {
		t.Run("should map "+tc.name, func(t *testing.T) {
			api := &fakeAPI{member: tc.member}
			r := newAdapter(api, 1, "news", nil, newTestLogger())
			got, err := r.IsSubscribed(ctx, 42)
			if err != nil || got != tc.want {
				t.Errorf("got %v, %v", got, err)
			}
			if api.memberOf.SuperGroupUsername != "@news" || api.memberOf.UserID != 42 {
				t.Errorf("unexpected lookup %+v", api.memberOf)
			}
		})
	}

	t.Run("should use a numeric channel id", func(t *testing.T) {
		api := &fakeAPI{member: tgbotapi.ChatMember{Status: "member"}}
		r := newAdapter(api, 1, "-100123", nil, newTestLogger())
		_, _ = r.IsSubscribed(ctx, 42)
		if api.memberOf.ChatID != -100123 {
			t.Errorf("unexpected chat id %d", api.memberOf.ChatID)
		}
	})
}

func TestRealTelegramBotAdapter_HandleUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("should answer a pre-checkout query without the handler", func(t *testing.T) {
		api := &fakeAPI{}
		h := &recordingHandler{}
		r := newAdapter(api, 1, "", nil, newTestLogger())
		r.SetHandler(h)
		r.handleUpdate(ctx, tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{ID: "q", From: &tgbotapi.User{ID: 42}}})
		ans := api.requests[0].(tgbotapi.PreCheckoutConfig)
		if ans.OK || ans.ErrorMessage == "" || len(h.events) != 0 {
			t.Errorf("expected a rejected answer, got %+v", ans)
		}
	})

	t.Run("should drop rate limited events but keep payments", func(t *testing.T) {
		h := &recordingHandler{}
		r := newAdapter(&fakeAPI{}, 1, "", denyLimiter{}, newTestLogger())
		r.SetHandler(h)
		r.handleUpdate(ctx, tgbotapi.Update{Message: privateMessage("spam")})
		m := privateMessage("")
		m.SuccessfulPayment = &tgbotapi.SuccessfulPayment{TotalAmount: 50, InvoicePayload: "stars50"}
		r.handleUpdate(ctx, tgbotapi.Update{Message: m})
		if len(h.events) != 1 || h.events[0].Kind != application.EventPayment {
			t.Errorf("unexpected events %+v", h.events)
		}
	})

	t.Run("should answer callbacks to stop the spinner", func(t *testing.T) {
		api := &fakeAPI{}
		r := newAdapter(api, 1, "", nil, newTestLogger())
		r.SetHandler(&recordingHandler{})
		r.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb", From: &tgbotapi.User{ID: 42}, Data: "home"}})
		if len(api.requests) != 1 {
			t.Fatalf("expected one callback answer, got %d", len(api.requests))
		}
		if c := api.requests[0].(tgbotapi.CallbackConfig); c.CallbackQueryID != "cb" {
			t.Errorf("unexpected answer %+v", c)
		}
	})

	t.Run("should shard one user to one worker", func(t *testing.T) {
		r := newAdapter(&fakeAPI{}, 4, "", nil, newTestLogger())
		a := r.shard(tgbotapi.Update{Message: privateMessage("x")})
		b := r.shard(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{From: &tgbotapi.User{ID: 42}}})
		if a != b || a != 42%4 {
			t.Errorf("expected shard %d, got %d and %d", 42%4, a, b)
		}
	})
}

func TestRealTelegramBotAdapter_Polling(t *testing.T) {
	t.Run("should return only after in-flight handlers finish", func(t *testing.T) {
		api := &fakeAPI{updates: make(chan tgbotapi.Update, 1)}
		h := &blockingHandler{started: make(chan struct{}, 1), release: make(chan struct{}), done: make(chan struct{})}
		r := newAdapter(api, 2, "", nil, newTestLogger())
		r.SetHandler(h)

		returned := make(chan error, 1)
		go func() { returned <- r.StartPolling(context.Background()) }()
		api.updates <- tgbotapi.Update{Message: privateMessage("hello")}

		select {
		case <-h.started:
		case <-time.After(2 * time.Second):
			t.Fatal("update was never handled")
		}
		r.StopPolling()

		select {
		case <-returned:
			t.Fatal("polling returned while a handler was still running")
		case <-time.After(50 * time.Millisecond):
		}
		close(h.release)

		select {
		case err := <-returned:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("polling did not stop")
		}
		select {
		case <-h.done:
		default:
			t.Error("handler did not complete before polling returned")
		}
	})

	t.Run("should not start after a stop", func(t *testing.T) {
		r := newAdapter(&fakeAPI{}, 1, "", nil, newTestLogger())
		r.SetHandler(&recordingHandler{})
		r.StopPolling()

		returned := make(chan error, 1)
		go func() { returned <- r.StartPolling(context.Background()) }()
		select {
		case err := <-returned:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("polling started after StopPolling")
		}
	})
}
