//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/store"
	"telegram-ai-stars/internal/usecase"
)

func newSessions(st *store.Store) usecase.SessionUseCase {
	return usecase.NewSessionUseCase(st, st.Templates(), st, model.DefaultCatalog(), testEconomy(), newTestTranslator(),
		usecase.SessionOptions{BotUsername: "stars_bot", Channel: "@stars_news"}, fixedClock(), newTestLogger())
}

func hasButton(s adapter.Screen, data string) bool {
	for _, row := range s.Rows {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

func TestSessionUseCase_Navigation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedUser(t, st, 10, nil)
	uc := newSessions(st)

	screen, err := uc.Home(ctx, 10)
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	if !strings.HasPrefix(screen.Text, "Hello") {
		t.Errorf("expected localized main menu, got %q", screen.Text)
	}
	if !hasButton(screen, usecase.Nav(model.StateGenerateMenu)) {
		t.Error("main menu lacks the generate button")
	}

	t.Run("should push frames on enter and pop them on back", func(t *testing.T) {
		if _, err := uc.Enter(ctx, 10, model.StateProfileMenu, nil); err != nil {
			t.Fatalf("Enter profile: %v", err)
		}
		if _, err := uc.Enter(ctx, 10, model.StateBalance, nil); err != nil {
			t.Fatalf("Enter balance: %v", err)
		}
		u := mustUser(t, st, 10)
		if u.State != model.StateBalance || len(u.MenuStack) != 2 {
			t.Fatalf("expected balance with 2 frames, got %s with %d", u.State, len(u.MenuStack))
		}

		if _, err := uc.Back(ctx, 10); err != nil {
			t.Fatalf("Back: %v", err)
		}
		if u := mustUser(t, st, 10); u.State != model.StateProfileMenu {
			t.Errorf("expected profile after back, got %s", u.State)
		}
		_, _ = uc.Back(ctx, 10)
		_, _ = uc.Back(ctx, 10)
		if u := mustUser(t, st, 10); u.State != model.StateMainMenu || len(u.MenuStack) != 0 {
			t.Errorf("expected main menu with empty stack, got %s with %d", u.State, len(u.MenuStack))
		}
	})

	t.Run("should not push when entering the current state", func(t *testing.T) {
		_, _ = uc.Home(ctx, 10)
		_, _ = uc.Enter(ctx, 10, model.StateShop, nil)
		_, _ = uc.Enter(ctx, 10, model.StateShop, nil)
		if n := len(mustUser(t, st, 10).MenuStack); n != 1 {
			t.Errorf("expected 1 frame, got %d", n)
		}
	})

	t.Run("should bound the stack depth", func(t *testing.T) {
		_, _ = uc.Home(ctx, 10)
		for i := 0; i < usecase.MaxMenuDepth+10; i++ {
			s := model.StateShop
			if i%2 == 1 {
				s = model.StateBalance
			}
			if _, err := uc.Enter(ctx, 10, s, nil); err != nil {
				t.Fatalf("Enter: %v", err)
			}
		}
		if n := len(mustUser(t, st, 10).MenuStack); n != usecase.MaxMenuDepth {
			t.Errorf("expected %d frames, got %d", usecase.MaxMenuDepth, n)
		}
	})

	t.Run("should fall back to the main menu once the walk outgrows the stack", func(t *testing.T) {
		_, _ = uc.Home(ctx, 10)
		if _, err := uc.Enter(ctx, 10, model.StateProfileMenu, nil); err != nil {
			t.Fatalf("Enter profile: %v", err)
		}
		steps := usecase.MaxMenuDepth + 1
		for i := 0; i < steps; i++ {
			s := model.StateShop
			if i%2 == 1 {
				s = model.StateBalance
			}
			if _, err := uc.Enter(ctx, 10, s, nil); err != nil {
				t.Fatalf("Enter: %v", err)
			}
		}
		for i := 0; i < steps; i++ {
			if _, err := uc.Back(ctx, 10); err != nil {
				t.Fatalf("Back: %v", err)
			}
		}
		// the profile frame was the oldest and got dropped
		if u := mustUser(t, st, 10); u.State != model.StateMainMenu {
			t.Errorf("expected main menu after the capped walk, got %s", u.State)
		}
	})

	t.Run("should clear the stack on home", func(t *testing.T) {
		_, _ = uc.Enter(ctx, 10, model.StateReferral, nil)
		_, _ = uc.Home(ctx, 10)
		u := mustUser(t, st, 10)
		if u.State != model.StateMainMenu || len(u.MenuStack) != 0 {
			t.Errorf("expected clean main menu, got %s with %d", u.State, len(u.MenuStack))
		}
	})
}

func TestSessionUseCase_UnknownState(t *testing.T) {
	ctx := context.Background()

	t.Run("should show the main menu for a stale state", func(t *testing.T) {
		st := newTestStore(t)
		seedUser(t, st, 10, func(u *model.User) { u.State = "garbage" })
		uc := newSessions(st)

		screen, err := uc.Show(ctx, 10)
		if err != nil {
			t.Fatalf("Show: %v", err)
		}
		if !strings.HasPrefix(screen.Text, "Hello") || !hasButton(screen, usecase.Nav(model.StateGenerateMenu)) {
			t.Errorf("expected the main menu, got %q", screen.Text)
		}
	})

	t.Run("should land on the main menu when back pops a stale frame", func(t *testing.T) {
		st := newTestStore(t)
		seedUser(t, st, 10, func(u *model.User) {
			u.State = model.StateBalance
			u.MenuStack = []model.MenuFrame{{State: "garbage", Data: map[string]string{"k": "v"}}}
		})
		uc := newSessions(st)

		screen, err := uc.Back(ctx, 10)
		if err != nil {
			t.Fatalf("Back: %v", err)
		}
		if !strings.HasPrefix(screen.Text, "Hello") {
			t.Errorf("expected the main menu, got %q", screen.Text)
		}
		u := mustUser(t, st, 10)
		if u.State != model.StateMainMenu || u.StateData != nil || len(u.MenuStack) != 0 {
			t.Errorf("expected a clean main menu, got %s %v with %d frames", u.State, u.StateData, len(u.MenuStack))
		}
	})

	t.Run("should not push a stale state on enter", func(t *testing.T) {
		st := newTestStore(t)
		seedUser(t, st, 10, func(u *model.User) { u.State = "garbage" })
		uc := newSessions(st)

		if _, err := uc.Enter(ctx, 10, model.StateShop, nil); err != nil {
			t.Fatalf("Enter: %v", err)
		}
		u := mustUser(t, st, 10)
		if len(u.MenuStack) != 1 || u.MenuStack[0].State != model.StateMainMenu {
			t.Errorf("expected one main menu frame, got %+v", u.MenuStack)
		}
	})
}

func TestSessionUseCase_RenderFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("should discard a transition whose screen fails to render", func(t *testing.T) {
		st := newTestStore(t)
		seedUser(t, st, 10, nil)
		uc := newSessions(st)

		_, err := uc.Enter(ctx, 10, model.StateImageCountSelect, nil)
		if !errors.Is(err, domain.ErrPremiumRequired) {
			t.Fatalf("expected ErrPremiumRequired, got %v", err)
		}
		u := mustUser(t, st, 10)
		if u.State != model.StateMainMenu || len(u.MenuStack) != 0 {
			t.Errorf("state changed to %s with %d frames", u.State, len(u.MenuStack))
		}
	})

	t.Run("should refuse a missing template", func(t *testing.T) {
		st := newTestStore(t)
		seedUser(t, st, 10, nil)
		uc := newSessions(st)

		_, err := uc.Enter(ctx, 10, model.StateTemplateFill, map[string]string{usecase.StateDataTemplate: "nope"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSessionUseCase_Screens(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedUser(t, st, 10, nil)
	uc := newSessions(st)

	t.Run("should render every state", func(t *testing.T) {
		premium := seedUser(t, st, 11, func(u *model.User) { u.GrantPremium(0, fixedNow) })
		for _, s := range model.AllStates() {
			data := map[string]string(nil)
			if s == model.StateTemplateFill {
				data = map[string]string{usecase.StateDataTemplate: "portrait"}
			}
			screen, err := uc.Enter(ctx, premium.ID, s, data)
			if err != nil {
				t.Errorf("state %s: %v", s, err)
				continue
			}
			if screen.Text == "" {
				t.Errorf("state %s rendered empty text", s)
			}
		}
	})

	t.Run("should attach a QR code to the referral screen", func(t *testing.T) {
		screen, err := uc.Enter(ctx, 10, model.StateReferral, nil)
		if err != nil {
			t.Fatalf("Enter referral: %v", err)
		}
		if screen.Media == nil || len(screen.Media.PNG) == 0 {
			t.Fatal("expected a QR code image")
		}
	})

	t.Run("should link the required channel on the gate screen", func(t *testing.T) {
		screen, err := uc.Replace(ctx, 10, model.StateCheckSubscription, nil)
		if err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if !hasButton(screen, usecase.CBRecheck) {
			t.Error("gate screen lacks the recheck button")
		}
		found := false
		for _, row := range screen.Rows {
			for _, b := range row {
				if b.URL == "https://t.me/stars_news" {
					found = true
				}
			}
		}
		if !found {
			t.Error("gate screen lacks the channel link")
		}
	})
}

func TestReferralLink(t *testing.T) {
	if got := usecase.ReferralLink("stars_bot", "REF1"); got != "https://t.me/stars_bot?start=REF1" {
		t.Errorf("unexpected link %q", got)
	}
}
