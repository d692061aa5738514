//go:build !integration

package ai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/domain/ports/adapter"
	ai "telegram-ai-stars/internal/infra/adapters/ai"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type stubAI struct {
	name  string
	calls int
	err   error
}

func (s *stubAI) GenerateText(context.Context, adapter.TextRequest) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.name, nil
}

func TestMultiAIAdapter(t *testing.T) {
	ctx := context.Background()

	t.Run("should put the default provider first and skip unknown names", func(t *testing.T) {
		m := ai.NewMultiAIAdapter("gemini", []string{"pollinations", "openai", "metis"},
			map[string]adapter.TextGenerator{"pollinations": &stubAI{}, "gemini": &stubAI{}}, newTestLogger())
		got := m.Providers()
		if len(got) != 2 || got[0] != "gemini" || got[1] != "pollinations" {
			t.Errorf("unexpected order %v", got)
		}
	})

	t.Run("should fall back on a transient failure", func(t *testing.T) {
		open := &stubAI{name: "openai", err: &adapter.StatusError{Provider: "openai", Code: 503}}
		poll := &stubAI{name: "pollinations"}
		m := ai.NewMultiAIAdapter("openai", []string{"pollinations"},
			map[string]adapter.TextGenerator{"openai": open, "pollinations": poll}, newTestLogger())
		out, err := m.GenerateText(ctx, adapter.TextRequest{Prompt: "hi"})
		if err != nil || out != "pollinations" {
			t.Fatalf("expected fallback answer, got %q, %v", out, err)
		}
	})

	t.Run("should stop on a permanent failure", func(t *testing.T) {
		open := &stubAI{name: "openai", err: &adapter.StatusError{Provider: "openai", Code: 400}}
		poll := &stubAI{name: "pollinations"}
		m := ai.NewMultiAIAdapter("openai", []string{"pollinations"},
			map[string]adapter.TextGenerator{"openai": open, "pollinations": poll}, newTestLogger())
		if _, err := m.GenerateText(ctx, adapter.TextRequest{Prompt: "hi"}); !adapter.IsPermanent(err) {
			t.Fatalf("expected a permanent error, got %v", err)
		}
		if poll.calls != 0 {
			t.Error("fallback was called after a permanent error")
		}
	})

	t.Run("should keep the transient classification when all fail", func(t *testing.T) {
		a := &stubAI{err: &adapter.StatusError{Provider: "a", Code: 502}}
		b := &stubAI{err: &adapter.StatusError{Provider: "b", Code: 429}}
		m := ai.NewMultiAIAdapter("a", []string{"b"}, map[string]adapter.TextGenerator{"a": a, "b": b}, newTestLogger())
		_, err := m.GenerateText(ctx, adapter.TextRequest{})
		if !errors.Is(err, adapter.ErrTransient) {
			t.Errorf("expected transient, got %v", err)
		}
	})
}

type slowAI struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowAI) GenerateText(context.Context, adapter.TextRequest) (string, error) {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	s.inFlight.Add(-1)
	return "ok", nil
}

func TestNewLimitedAI(t *testing.T) {
	t.Run("should cap concurrent calls", func(t *testing.T) {
		inner := &slowAI{}
		text, images := ai.NewLimitedAI(inner, nil, 2)
		if images != nil {
			t.Error("expected no image generator")
		}
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = text.GenerateText(context.Background(), adapter.TextRequest{})
			}()
		}
		wg.Wait()
		if p := inner.peak.Load(); p > 2 {
			t.Errorf("peak concurrency %d exceeds limit", p)
		}
	})

	t.Run("should give up waiting when the context ends", func(t *testing.T) {
		inner := &slowAI{}
		text, _ := ai.NewLimitedAI(inner, nil, 1)
		go func() { _, _ = text.GenerateText(context.Background(), adapter.TextRequest{}) }()
		time.Sleep(2 * time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := text.GenerateText(ctx, adapter.TextRequest{}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestPollinationsAdapter(t *testing.T) {
	var lastPath atomic.Value
	lastPath.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastPath.Store(r.URL.Path)
		switch r.URL.Path {
		case "/prompt/bad":
			w.WriteHeader(http.StatusBadRequest)
		case "/prompt/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte("  an answer \n"))
		}
	}))
	defer srv.Close()
	p := ai.NewPollinationsAdapter(srv.URL+"/prompt/", srv.URL+"/img/", false, time.Second, nil)
	ctx := context.Background()

	t.Run("should send style, history and prompt in the path", func(t *testing.T) {
		out, err := p.GenerateText(ctx, adapter.TextRequest{
			System:  "Be brief.",
			History: []adapter.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
			Prompt:  "what now?",
		})
		if err != nil || out != "an answer" {
			t.Fatalf("unexpected answer %q, %v", out, err)
		}
		want := "/prompt/Be brief.\n\nuser: hi\nassistant: hello\nuser: what now?"
		if got := lastPath.Load().(string); got != want {
			t.Errorf("path %q, want %q", got, want)
		}
	})

	t.Run("should classify provider failures", func(t *testing.T) {
		_, err := p.GenerateText(ctx, adapter.TextRequest{Prompt: "bad"})
		var se *adapter.StatusError
		if !errors.As(err, &se) || se.Code != 400 || !adapter.IsPermanent(err) {
			t.Errorf("expected permanent 400, got %v", err)
		}
		_, err = p.GenerateText(ctx, adapter.TextRequest{Prompt: "busy"})
		if !errors.Is(err, adapter.ErrTransient) {
			t.Errorf("expected transient 503, got %v", err)
		}
	})

	t.Run("should build an escaped image url without fetching", func(t *testing.T) {
		lastPath.Store("")
		u, err := p.ImageURL(ctx, "a red cat")
		if err != nil {
			t.Fatalf("ImageURL: %v", err)
		}
		if u != srv.URL+"/img/a%20red%20cat?nologo=true" {
			t.Errorf("unexpected url %q", u)
		}
		if lastPath.Load().(string) != "" {
			t.Error("image was fetched without prefetch")
		}
	})

	t.Run("should prefetch the image when asked", func(t *testing.T) {
		pre := ai.NewPollinationsAdapter(srv.URL+"/prompt/", srv.URL+"/img/", true, time.Second, nil)
		if _, err := pre.ImageURL(ctx, "cat"); err != nil {
			t.Fatalf("ImageURL: %v", err)
		}
		if got := lastPath.Load().(string); got != "/img/cat" {
			t.Errorf("expected a prefetch, got %q", got)
		}
	})
}

func TestEstimateTokens(t *testing.T) {
	if got := ai.EstimateTokens("one two three"); got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
	if got := ai.EstimateTokens(""); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
