//go:build !integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/infra/api"
	"telegram-ai-stars/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type mockAdmin struct {
	CheckPasswordFunc func(string) bool
	InspectUserFunc   func(ctx context.Context, id int64) (*model.User, error)
	EditUserFunc      func(ctx context.Context, id int64, field, value string) (*model.User, error)
}

func (m *mockAdmin) Login(context.Context, int64, string) error { return nil }
func (m *mockAdmin) Logout(context.Context, int64) error        { return nil }
func (m *mockAdmin) Authorized(context.Context, int64) bool     { return false }
func (m *mockAdmin) CheckPassword(p string) bool                { return m.CheckPasswordFunc(p) }
func (m *mockAdmin) InspectUser(ctx context.Context, id int64) (*model.User, error) {
	return m.InspectUserFunc(ctx, id)
}
func (m *mockAdmin) EditUser(ctx context.Context, id int64, field, value string) (*model.User, error) {
	return m.EditUserFunc(ctx, id, field, value)
}

type mockStats struct {
	OverviewFunc func(ctx context.Context) (usecase.Overview, error)
}

func (m *mockStats) Overview(ctx context.Context) (usecase.Overview, error) { return m.OverviewFunc(ctx) }
func (m *mockStats) InactiveUsers(context.Context, time.Time) (int, error) { return 0, nil }

type mockPromos struct {
	CreateFunc func(ctx context.Context, code string, kind model.PromoKind, value int64, limit int) (*model.PromoCode, error)
	DeleteFunc func(ctx context.Context, code string) error
}

func (m *mockPromos) Create(ctx context.Context, code string, kind model.PromoKind, value int64, limit int) (*model.PromoCode, error) {
	return m.CreateFunc(ctx, code, kind, value, limit)
}
func (m *mockPromos) Redeem(context.Context, int64, string) (*model.PromoCode, *model.User, error) {
	return nil, nil, domain.ErrPromoNotFound
}
func (m *mockPromos) List(context.Context) ([]*model.PromoCode, error)  { return nil, nil }
func (m *mockPromos) SetActive(context.Context, string, bool) error     { return nil }
func (m *mockPromos) Delete(ctx context.Context, code string) error     { return m.DeleteFunc(ctx, code) }

type mockTemplates struct {
	SaveFunc func(ctx context.Context, id, title, pattern string, category model.TemplateCategory) (*model.Template, error)
}

func (m *mockTemplates) List(context.Context) ([]*model.Template, error) { return nil, nil }
func (m *mockTemplates) Get(context.Context, string) (*model.Template, error) {
	return nil, domain.ErrNotFound
}
func (m *mockTemplates) Save(ctx context.Context, id, title, pattern string, category model.TemplateCategory) (*model.Template, error) {
	return m.SaveFunc(ctx, id, title, pattern, category)
}
func (m *mockTemplates) Delete(context.Context, string) error { return domain.ErrNotFound }

type mockBroadcast struct {
	BroadcastMessageFunc func(ctx context.Context, message string) (usecase.Broadcast, error)
}

func (m *mockBroadcast) BroadcastMessage(ctx context.Context, message string) (usecase.Broadcast, error) {
	return m.BroadcastMessageFunc(ctx, message)
}

type fixture struct {
	handler   http.Handler
	admin     *mockAdmin
	promos    *mockPromos
	templates *mockTemplates
	broadcast *mockBroadcast
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		admin: &mockAdmin{
			CheckPasswordFunc: func(p string) bool { return p == "s3cret" },
			InspectUserFunc: func(_ context.Context, id int64) (*model.User, error) {
				if id != 7 {
					return nil, domain.ErrNotFound
				}
				return &model.User{ID: 7, Stars: 40}, nil
			},
			EditUserFunc: func(_ context.Context, id int64, field, value string) (*model.User, error) {
				if field != usecase.FieldStars {
					return nil, domain.ErrFieldNotEditable
				}
				return &model.User{ID: id, Stars: 99}, nil
			},
		},
		promos: &mockPromos{
			CreateFunc: func(_ context.Context, code string, kind model.PromoKind, value int64, limit int) (*model.PromoCode, error) {
				if code == "TAKEN" {
					return nil, domain.ErrAlreadyExists
				}
				return &model.PromoCode{Code: code, Kind: kind, Value: value, UsageLimit: limit, Active: true}, nil
			},
			DeleteFunc: func(context.Context, string) error { return domain.ErrPromoNotFound },
		},
		templates: &mockTemplates{
			SaveFunc: func(_ context.Context, id, title, pattern string, category model.TemplateCategory) (*model.Template, error) {
				return &model.Template{ID: id, Title: title, Pattern: pattern, Category: category}, nil
			},
		},
		broadcast: &mockBroadcast{
			BroadcastMessageFunc: func(context.Context, string) (usecase.Broadcast, error) {
				return usecase.Broadcast{ID: "job-1", Recipients: 3}, nil
			},
		},
	}
	stats := &mockStats{OverviewFunc: func(context.Context) (usecase.Overview, error) {
		return usecase.Overview{Users: 5, Premium: 1, TotalStars: 250}, nil
	}}
	srv := api.NewServer(api.Options{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		Metrics:   http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics") }),
		Now:       func() time.Time { return f.now },
	}, api.Deps{
		Admin:     f.admin,
		Stats:     stats,
		Promos:    f.promos,
		Templates: f.templates,
		Broadcast: f.broadcast,
	}, newTestLogger())
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/admin/login", "", map[string]string{"password": "s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if out.Token == "" || !out.ExpiresAt.Equal(f.now.Add(time.Hour)) {
		t.Fatalf("unexpected login response: %+v", out)
	}
	return out.Token
}

func TestLivenessAndMetrics(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/", "/health"} {
		t.Run("should report ok on "+path, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, path, "", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != "ok" || body["bot"] != "active" {
				t.Fatalf("body = %v", body)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Fatal("expected a request id header")
			}
		})
	}

	t.Run("should serve metrics without a token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/metrics", "", nil)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
			t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
		}
	})
}

func TestAdminLogin(t *testing.T) {
	f := newFixture(t)

	t.Run("should reject a wrong password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/admin/login", "", map[string]string{"password": "nope"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("should reject a malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("should guard admin routes", func(t *testing.T) {
		if rec := f.do(t, http.MethodGet, "/admin/stats", "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("no token status = %d", rec.Code)
		}
		if rec := f.do(t, http.MethodGet, "/admin/stats", "garbage", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("bad token status = %d", rec.Code)
		}
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		tok := f.login(t)
		f.now = f.now.Add(2 * time.Hour)
		defer func() { f.now = f.now.Add(-2 * time.Hour) }()
		if rec := f.do(t, http.MethodGet, "/admin/stats", tok, nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	tok := f.login(t)

	t.Run("should return the stats overview", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/admin/stats", tok, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if out["users"] != float64(5) || out["total_stars"] != float64(250) {
			t.Fatalf("body = %v", out)
		}
	})

	t.Run("should inspect a user and map not found", func(t *testing.T) {
		if rec := f.do(t, http.MethodGet, "/admin/users/7", tok, nil); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if rec := f.do(t, http.MethodGet, "/admin/users/8", tok, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("missing user status = %d", rec.Code)
		}
		if rec := f.do(t, http.MethodGet, "/admin/users/abc", tok, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("bad id status = %d", rec.Code)
		}
	})

	t.Run("should edit a user field", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/admin/users/7", tok, map[string]string{"field": "stars", "value": "99"})
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"stars":99`) {
			t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
		}
		rec = f.do(t, http.MethodPatch, "/admin/users/7", tok, map[string]string{"field": "xp", "value": "1"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("non-editable status = %d", rec.Code)
		}
	})

	t.Run("should create promos and report conflicts", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/admin/promos", tok, map[string]any{"code": "SPRING", "value": 20, "usage_limit": 5})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d", rec.Code)
		}
		var p model.PromoCode
		_ = json.Unmarshal(rec.Body.Bytes(), &p)
		if p.Kind != model.PromoStars || p.Value != 20 || p.UsageLimit != 5 {
			t.Fatalf("promo = %+v", p)
		}
		rec = f.do(t, http.MethodPost, "/admin/promos", tok, map[string]any{"code": "TAKEN", "value": 1})
		if rec.Code != http.StatusConflict {
			t.Fatalf("duplicate status = %d", rec.Code)
		}
		if rec := f.do(t, http.MethodDelete, "/admin/promos/GONE", tok, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("delete missing status = %d", rec.Code)
		}
	})

	t.Run("should save and delete templates", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/admin/templates/poem", tok, map[string]string{
			"title": "Poem", "pattern": "Write a poem about {topic}", "category": "text",
		})
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"poem"`) {
			t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
		}
		if rec := f.do(t, http.MethodDelete, "/admin/templates/none", tok, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("delete status = %d", rec.Code)
		}
	})

	t.Run("should start a broadcast", func(t *testing.T) {
		var got string
		f.broadcast.BroadcastMessageFunc = func(_ context.Context, msg string) (usecase.Broadcast, error) {
			got = msg
			return usecase.Broadcast{ID: "job-1", Recipients: 3}, nil
		}
		rec := f.do(t, http.MethodPost, "/admin/broadcast", tok, map[string]string{"message": "hello all"})
		if rec.Code != http.StatusAccepted || got != "hello all" {
			t.Fatalf("status=%d got=%q", rec.Code, got)
		}
		if !strings.Contains(rec.Body.String(), `"recipients":3`) {
			t.Fatalf("body = %s", rec.Body.String())
		}
		if rec := f.do(t, http.MethodPost, "/admin/broadcast", tok, map[string]string{"message": "  "}); rec.Code != http.StatusBadRequest {
			t.Fatalf("empty message status = %d", rec.Code)
		}
	})
}
