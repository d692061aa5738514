//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/config"
	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/i18n"
	"telegram-ai-stars/internal/infra/store"
	"telegram-ai-stars/internal/usecase"
)

const adminID int64 = 1

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() usecase.Clock { return func() time.Time { return fixedNow } }

// movableClock lets a test advance time between calls.
type movableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// =============================
// Storage
// =============================

// memDocuments is an in-memory DocumentStore backing a real store.Store.
type memDocuments struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (m *memDocuments) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

func (m *memDocuments) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = map[string][]byte{}
	}
	m.docs[name] = append([]byte(nil), data...)
	return nil
}

func (m *memDocuments) Close() error { return nil }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(&memDocuments{}, store.Options{
		Backend:    "memory",
		AdminID:    adminID,
		AdminStars: 10000,
		Now:        func() time.Time { return fixedNow },
	}, newTestLogger())
	if err := st.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	return st
}

// seedUser creates a user with the stock starting balance and applies mutate.
func seedUser(t *testing.T, st *store.Store, id int64, mutate func(u *model.User)) *model.User {
	t.Helper()
	ctx := context.Background()
	_, _, err := st.GetOrCreate(ctx, id, func() *model.User {
		u := model.NewUser(id, "user", testEconomy().StartBalance, fixedNow)
		u.State = model.StateMainMenu
		u.HasSubscribed = true
		return u
	})
	if err != nil {
		t.Fatalf("seed user %d: %v", id, err)
	}
	u, err := st.Update(ctx, id, func(u *model.User) error {
		if mutate != nil {
			mutate(u)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed user %d: %v", id, err)
	}
	return u
}

func mustUser(t *testing.T, st *store.Store, id int64) *model.User {
	t.Helper()
	u, err := st.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%d): %v", id, err)
	}
	return u
}

func testEconomy() config.EconomyConfig { return config.DefaultEconomy() }

func newEconomy(st *store.Store, clock usecase.Clock) usecase.EconomyUseCase {
	return usecase.NewEconomyUseCase(st, st.Stats(), st, model.DefaultCatalog(), testEconomy(), clock, newTestLogger())
}

// =============================
// Adapters
// =============================

type sentMessage struct {
	ChatID int64
	Text   string
}

// MockTelegramBot records everything it is asked to send.
type MockTelegramBot struct {
	mu        sync.Mutex
	Sent      []sentMessage
	Delivered []adapter.Screen
	Edited    []adapter.Screen
	Invoices  []adapter.Invoice

	DeliverFunc     func(ctx context.Context, chatID int64, s adapter.Screen) (adapter.MessageRef, error)
	EditFunc        func(ctx context.Context, ref adapter.MessageRef, s adapter.Screen) error
	SendInvoiceFunc func(ctx context.Context, chatID int64, inv adapter.Invoice) error
	SendMessageFunc func(ctx context.Context, chatID int64, text string) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) Deliver(ctx context.Context, chatID int64, s adapter.Screen) (adapter.MessageRef, error) {
	if m.DeliverFunc != nil {
		return m.DeliverFunc(ctx, chatID, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Delivered = append(m.Delivered, s)
	return adapter.MessageRef{ChatID: chatID, MessageID: len(m.Delivered)}, nil
}

func (m *MockTelegramBot) Edit(ctx context.Context, ref adapter.MessageRef, s adapter.Screen) error {
	if m.EditFunc != nil {
		return m.EditFunc(ctx, ref, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edited = append(m.Edited, s)
	return nil
}

func (m *MockTelegramBot) SendInvoice(ctx context.Context, chatID int64, inv adapter.Invoice) error {
	if m.SendInvoiceFunc != nil {
		return m.SendInvoiceFunc(ctx, chatID, inv)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invoices = append(m.Invoices, inv)
	return nil
}

func (m *MockTelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, chatID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

// MockTextGen answers with GenerateTextFunc or a fixed reply.
type MockTextGen struct {
	mu    sync.Mutex
	Calls []adapter.TextRequest

	GenerateTextFunc func(ctx context.Context, req adapter.TextRequest) (string, error)
}

func (m *MockTextGen) GenerateText(ctx context.Context, req adapter.TextRequest) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()
	if m.GenerateTextFunc != nil {
		return m.GenerateTextFunc(ctx, req)
	}
	return "generated text", nil
}

func (m *MockTextGen) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockImageGen returns one URL per prompt.
type MockImageGen struct {
	mu      sync.Mutex
	Prompts []string

	ImageURLFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *MockImageGen) ImageURL(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	n := len(m.Prompts)
	m.mu.Unlock()
	if m.ImageURLFunc != nil {
		return m.ImageURLFunc(ctx, prompt)
	}
	return "https://img.example/" + string(rune('a'+n-1)), nil
}

func (m *MockImageGen) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

type MockMembership struct {
	Calls            int
	IsSubscribedFunc func(ctx context.Context, userID int64) (bool, error)
}

func (m *MockMembership) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	m.Calls++
	if m.IsSubscribedFunc != nil {
		return m.IsSubscribedFunc(ctx, userID)
	}
	return true, nil
}

type MockStats struct {
	IncFunc      func(ctx context.Context, key string, n int64) error
	SnapshotFunc func(ctx context.Context) (model.Stats, error)
}

func (m *MockStats) Inc(ctx context.Context, key string, n int64) error {
	if m.IncFunc != nil {
		return m.IncFunc(ctx, key, n)
	}
	return nil
}

func (m *MockStats) Snapshot(ctx context.Context) (model.Stats, error) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx)
	}
	return model.Stats{}, nil
}

// =============================
// Logging and i18n
// =============================

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// newTestTranslator loads a tiny in-memory locale. Missing keys render as
// the key itself, which keeps assertions independent of wording.
func newTestTranslator() *i18n.Bundle {
	testFS := fstest.MapFS{
		"locales/en.yaml": {Data: []byte("main.text: 'Hello %s, %d stars, %s'\nbtn.back: 'Back'\nbtn.home: 'Home'\n")},
		"locales/ru.yaml": {Data: []byte("main.text: 'Привет %s, %d звёзд, %s'\n")},
	}
	b, err := i18n.NewBundle(testFS, "en")
	if err != nil {
		panic(err)
	}
	return b
}
