//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/store"
	"telegram-ai-stars/internal/usecase"
)

type genFixture struct {
	st     *store.Store
	text   *MockTextGen
	images *MockImageGen
	sleeps []time.Duration
	uc     usecase.GenerationUseCase
}

func newGenFixture(t *testing.T, attempts int) *genFixture {
	t.Helper()
	f := &genFixture{st: newTestStore(t), text: &MockTextGen{}, images: &MockImageGen{}}
	retry := usecase.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		},
	}
	f.uc = usecase.NewGenerationUseCase(f.st, f.st.Templates(), f.st, f.st.Stats(), f.text, f.images,
		model.DefaultCatalog(), testEconomy(), retry, fixedClock(), newTestLogger())
	return f
}

func TestScaledCost(t *testing.T) {
	tests := []struct {
		base int64
		mult float64
		want int64
	}{
		{5, 1.0, 5},
		{5, 1.2, 6},
		{5, 0.8, 4},
		{6, 1.2, 7},
		{3, 1.1, 3},
		{10, 0.7, 7},
	}
	for _, tc := range tests {
		if got := usecase.ScaledCost(tc.base, tc.mult); got != tc.want {
			t.Errorf("ScaledCost(%d, %v) = %d, want %d", tc.base, tc.mult, got, tc.want)
		}
	}
}

func TestCountWords(t *testing.T) {
	if n := usecase.CountWords("Hello, world! Привет мир 42"); n != 5 {
		t.Errorf("expected 5 words, got %d", n)
	}
	if n := usecase.CountWords("  "); n != 0 {
		t.Errorf("expected 0 words, got %d", n)
	}
}

func TestGenerationUseCase_Image(t *testing.T) {
	ctx := context.Background()

	t.Run("should charge the scaled cost and unlock the first image achievement", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, func(u *model.User) {
			u.ImageModel = "midjourney"
			u.Settings.AutoTranslate = false
		})

		res, err := f.uc.Generate(ctx, 10, model.KindImage, "  a red fox  ")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if res.Cost != 6 {
			t.Errorf("expected cost 6, got %d", res.Cost)
		}
		if len(res.ImageURLs) != 1 || res.RequestID == "" || res.Prompt != "a red fox" {
			t.Errorf("unexpected result %+v", res)
		}
		if len(res.Unlocked) != 1 || res.Unlocked[0].ID != "first_image" {
			t.Errorf("expected first_image unlocked, got %+v", res.Unlocked)
		}
		// 50 - 6 + 2 reward
		if res.User.Stars != 46 || res.User.Counters.Images != 1 || res.User.LastPrompt != "a red fox" {
			t.Errorf("unexpected user after generation: stars %d counters %+v", res.User.Stars, res.User.Counters)
		}
		if !strings.HasPrefix(f.images.Prompts[0], "a red fox, ") || !strings.Contains(f.images.Prompts[0], "artstation") {
			t.Errorf("style not appended: %q", f.images.Prompts[0])
		}
	})

	t.Run("should reject before calling the provider when stars are short", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, func(u *model.User) { u.Stars = 2 })

		_, err := f.uc.Generate(ctx, 10, model.KindLogo, "logo")
		var ins *domain.InsufficientStarsError
		if !errors.As(err, &ins) || ins.Need != 3 || ins.Have != 2 {
			t.Fatalf("expected need 3 have 2, got %v", err)
		}
		if f.images.callCount() != 0 {
			t.Error("provider called despite failed precheck")
		}
	})

	t.Run("should validate the prompt", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, nil)

		if _, err := f.uc.Generate(ctx, 10, model.KindImage, "   "); !errors.Is(err, domain.ErrPromptEmpty) {
			t.Errorf("expected ErrPromptEmpty, got %v", err)
		}
		long := strings.Repeat("я", testEconomy().MaxPromptLength+1)
		if _, err := f.uc.Generate(ctx, 10, model.KindImage, long); !errors.Is(err, domain.ErrPromptTooLong) {
			t.Errorf("expected ErrPromptTooLong, got %v", err)
		}
	})

	t.Run("should translate a Cyrillic prompt before rendering", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, nil)
		f.text.GenerateTextFunc = func(_ context.Context, req adapter.TextRequest) (string, error) {
			if !strings.HasPrefix(req.Prompt, "Translate this to English") {
				t.Errorf("unexpected translation prompt %q", req.Prompt)
			}
			return `"a cat on the roof"`, nil
		}

		if _, err := f.uc.Generate(ctx, 10, model.KindImage, "кот на крыше"); err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !strings.HasPrefix(f.images.Prompts[0], "a cat on the roof, ") {
			t.Errorf("expected translated prompt, got %q", f.images.Prompts[0])
		}
	})

	t.Run("should keep the original prompt when translation fails", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, nil)
		f.text.GenerateTextFunc = func(context.Context, adapter.TextRequest) (string, error) {
			return "", errors.New("down")
		}

		if _, err := f.uc.Generate(ctx, 10, model.KindImage, "кот"); err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !strings.HasPrefix(f.images.Prompts[0], "кот, ") {
			t.Errorf("expected original prompt, got %q", f.images.Prompts[0])
		}
	})

	t.Run("should render the selected number of variants for premium users", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, func(u *model.User) {
			u.GrantPremium(0, fixedNow)
			u.ImageCount = 3
		})

		res, err := f.uc.Generate(ctx, 10, model.KindAvatar, "knight")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(res.ImageURLs) != 3 || res.Cost != 0 {
			t.Fatalf("expected 3 free images, got %d costing %d", len(res.ImageURLs), res.Cost)
		}
		if !strings.HasSuffix(f.images.Prompts[2], "--variant 3") {
			t.Errorf("expected variant marker, got %q", f.images.Prompts[2])
		}
	})
}

func TestGenerationUseCase_Retry(t *testing.T) {
	ctx := context.Background()

	t.Run("should retry transient failures with doubling delays", func(t *testing.T) {
		f := newGenFixture(t, 4)
		seedUser(t, f.st, 10, func(u *model.User) { u.Settings.AutoTranslate = false })
		calls := 0
		f.images.ImageURLFunc = func(context.Context, string) (string, error) {
			calls++
			if calls < 3 {
				return "", &adapter.StatusError{Provider: "test", Code: 503}
			}
			return "https://img.example/ok", nil
		}

		res, err := f.uc.Generate(ctx, 10, model.KindImage, "sunset")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if res.ImageURLs[0] != "https://img.example/ok" {
			t.Errorf("unexpected url %q", res.ImageURLs[0])
		}
		if len(f.sleeps) != 2 || f.sleeps[0] != time.Second || f.sleeps[1] != 2*time.Second {
			t.Errorf("unexpected backoff %v", f.sleeps)
		}
	})

	t.Run("should stop on a permanent failure and leave the balance", func(t *testing.T) {
		f := newGenFixture(t, 4)
		seedUser(t, f.st, 10, nil)
		f.text.GenerateTextFunc = func(context.Context, adapter.TextRequest) (string, error) {
			return "", &adapter.StatusError{Provider: "test", Code: 400}
		}

		_, err := f.uc.Generate(ctx, 10, model.KindText, "hello")
		if !errors.Is(err, domain.ErrGenerationFailed) {
			t.Fatalf("expected ErrGenerationFailed, got %v", err)
		}
		if f.text.callCount() != 1 {
			t.Errorf("expected 1 attempt, got %d", f.text.callCount())
		}
		if u := mustUser(t, f.st, 10); u.Stars != 50 || u.Counters.Texts != 0 {
			t.Errorf("failed generation changed the user: %d stars", u.Stars)
		}
	})

	t.Run("should give up after the last attempt", func(t *testing.T) {
		f := newGenFixture(t, 3)
		seedUser(t, f.st, 10, nil)
		f.text.GenerateTextFunc = func(context.Context, adapter.TextRequest) (string, error) {
			return "", errors.New("connection reset")
		}

		if _, err := f.uc.Generate(ctx, 10, model.KindText, "hello"); !errors.Is(err, domain.ErrGenerationFailed) {
			t.Fatalf("expected ErrGenerationFailed, got %v", err)
		}
		if f.text.callCount() != 3 || len(f.sleeps) != 2 {
			t.Errorf("expected 3 attempts and 2 sleeps, got %d and %d", f.text.callCount(), len(f.sleeps))
		}
	})
}

func TestGenerationUseCase_Text(t *testing.T) {
	ctx := context.Background()

	t.Run("should price prompt and response words together", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, nil)
		f.text.GenerateTextFunc = func(context.Context, adapter.TextRequest) (string, error) {
			return strings.TrimSpace(strings.Repeat("word ", 150)), nil
		}

		res, err := f.uc.Generate(ctx, 10, model.KindText, "tell me more")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		// 153 words start two units of 100.
		if res.Cost != 2 {
			t.Errorf("expected cost 2, got %d", res.Cost)
		}
		if f.text.Calls[0].System == "" || f.text.Calls[0].History != nil {
			t.Errorf("unexpected request %+v", f.text.Calls[0])
		}
	})

	t.Run("should cap the final charge at the balance", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, func(u *model.User) { u.Stars = 1 })
		f.text.GenerateTextFunc = func(context.Context, adapter.TextRequest) (string, error) {
			return strings.Repeat("word ", 500), nil
		}

		res, err := f.uc.Generate(ctx, 10, model.KindText, "essay")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if res.Cost != 1 {
			t.Errorf("expected cost capped at 1, got %d", res.Cost)
		}
		if u := mustUser(t, f.st, 10); u.Stars < 0 {
			t.Errorf("balance went negative: %d", u.Stars)
		}
	})

	t.Run("should keep a rolling context for premium users", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, func(u *model.User) { u.GrantPremium(0, fixedNow) })

		if _, err := f.uc.Generate(ctx, 10, model.KindText, "first"); err != nil {
			t.Fatalf("Generate: %v", err)
		}
		res, err := f.uc.Generate(ctx, 10, model.KindText, "second")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(f.text.Calls[1].History) != 2 || f.text.Calls[1].History[0].Content != "first" {
			t.Errorf("expected prior turns in history, got %+v", f.text.Calls[1].History)
		}
		if len(res.User.Context) != 4 || res.Cost != 0 {
			t.Errorf("expected 4 turns for free, got %d costing %d", len(res.User.Context), res.Cost)
		}

		if err := f.uc.ClearContext(ctx, 10); err != nil {
			t.Fatalf("ClearContext: %v", err)
		}
		if u := mustUser(t, f.st, 10); len(u.Context) != 0 {
			t.Errorf("context not cleared: %d turns", len(u.Context))
		}
	})

	t.Run("should refuse premium-only models to free users", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, func(u *model.User) { u.TextModel = "o3_mini" })

		if _, err := f.uc.Generate(ctx, 10, model.KindText, "hi"); !errors.Is(err, domain.ErrPremiumRequired) {
			t.Fatalf("expected ErrPremiumRequired, got %v", err)
		}
	})
}

func TestGenerationUseCase_Followups(t *testing.T) {
	ctx := context.Background()

	t.Run("should regenerate the last request", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, func(u *model.User) { u.Settings.AutoTranslate = false })

		if _, err := f.uc.Regenerate(ctx, 10); !errors.Is(err, domain.ErrPromptEmpty) {
			t.Fatalf("expected ErrPromptEmpty without history, got %v", err)
		}
		if _, err := f.uc.Generate(ctx, 10, model.KindLogo, "owl"); err != nil {
			t.Fatalf("Generate: %v", err)
		}
		res, err := f.uc.Regenerate(ctx, 10)
		if err != nil {
			t.Fatalf("Regenerate: %v", err)
		}
		if res.Kind != model.KindLogo || res.Prompt != "owl" {
			t.Errorf("unexpected regenerate result %+v", res)
		}
	})

	t.Run("should improve the last image prompt", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, func(u *model.User) {
			u.LastPrompt = "owl"
			u.LastKind = model.KindImage
			u.Settings.AutoTranslate = false
		})
		f.text.GenerateTextFunc = func(_ context.Context, req adapter.TextRequest) (string, error) {
			if !strings.Contains(req.Prompt, "Original prompt: owl") {
				t.Errorf("unexpected improvement prompt %q", req.Prompt)
			}
			return "a majestic owl, golden hour", nil
		}

		res, err := f.uc.Improve(ctx, 10)
		if err != nil {
			t.Fatalf("Improve: %v", err)
		}
		if res.Cost != testEconomy().ImproveCost || res.Prompt != "a majestic owl, golden hour" {
			t.Errorf("unexpected improve result %+v", res)
		}
		if f.images.Prompts[0] != "a majestic owl, golden hour" {
			t.Errorf("unexpected image prompt %q", f.images.Prompts[0])
		}
		if u := res.User; u.LastKind != model.KindImage {
			t.Errorf("improve must keep the last kind, got %s", u.LastKind)
		}
	})

	t.Run("should fill a template and count its use", func(t *testing.T) {
		f := newGenFixture(t, 1)
		seedUser(t, f.st, 10, func(u *model.User) { u.Settings.AutoTranslate = false })

		_, err := f.uc.GenerateFromTemplate(ctx, 10, "portrait", "subject=an old sailor")
		var miss *domain.MissingPlaceholderError
		if !errors.As(err, &miss) || miss.Field != "style" {
			t.Fatalf("expected missing style, got %v", err)
		}

		res, err := f.uc.GenerateFromTemplate(ctx, 10, "portrait", "subject=an old sailor\nstyle=oil painting")
		if err != nil {
			t.Fatalf("GenerateFromTemplate: %v", err)
		}
		if !strings.HasPrefix(f.images.Prompts[0], "portrait of an old sailor, oil painting style") {
			t.Errorf("unexpected filled prompt %q", f.images.Prompts[0])
		}
		if res.User.Counters.Templates != 1 {
			t.Errorf("expected template counter 1, got %d", res.User.Counters.Templates)
		}
		tpl, _ := f.st.Templates().FindByID(ctx, "portrait")
		if tpl.UsageCount != 1 {
			t.Errorf("expected usage 1, got %d", tpl.UsageCount)
		}
	})
}
