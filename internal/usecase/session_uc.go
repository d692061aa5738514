package usecase

import (
	"context"

	"telegram-ai-stars/internal/config"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/logging"

	"github.com/rs/zerolog"
)

// MaxMenuDepth bounds the back-stack; the oldest frames are dropped first.
const MaxMenuDepth = 32

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// SessionUseCase drives the per-user menu state machine. Every transition
// renders the target screen against the tentative record; a render error
// leaves the stored state untouched.
type SessionUseCase interface {
	// Enter pushes the current screen and moves to target. The stack keeps at
	// most MaxMenuDepth frames, so past that depth Back reaches the main menu
	// before the screen the walk started from.
	Enter(ctx context.Context, userID int64, target model.State, data map[string]string) (adapter.Screen, error)
	Replace(ctx context.Context, userID int64, target model.State, data map[string]string) (adapter.Screen, error)
	Back(ctx context.Context, userID int64) (adapter.Screen, error)
	Home(ctx context.Context, userID int64) (adapter.Screen, error)
	Show(ctx context.Context, userID int64) (adapter.Screen, error)
	// Context builds a RenderContext for u without touching the store.
	Context(ctx context.Context, u *model.User) (RenderContext, error)
}

type SessionOptions struct {
	BotUsername string
	Channel     string
}

type sessionUC struct {
	users        repository.UserRepository
	templates    repository.TemplateRepository
	achievements repository.AchievementRepository
	catalog      *model.Catalog
	cfg          config.EconomyConfig
	loc          Localizer
	opts         SessionOptions
	clock        Clock
	log          *zerolog.Logger
}

func NewSessionUseCase(
	users repository.UserRepository,
	templates repository.TemplateRepository,
	achievements repository.AchievementRepository,
	catalog *model.Catalog,
	cfg config.EconomyConfig,
	loc Localizer,
	opts SessionOptions,
	clock Clock,
	logger *zerolog.Logger,
) *sessionUC {
	return &sessionUC{
		users:        users,
		templates:    templates,
		achievements: achievements,
		catalog:      catalog,
		cfg:          cfg,
		loc:          loc,
		opts:         opts,
		clock:        clock,
		log:          logging.Component(logger, "session_uc"),
	}
}

func (s *sessionUC) Enter(ctx context.Context, userID int64, target model.State, data map[string]string) (adapter.Screen, error) {
	defer logging.TraceDuration(s.log, "SessionUC.Enter")()
	return s.transition(ctx, userID, func(u *model.User) {
		if u.State != target {
			u.MenuStack = append(u.MenuStack, model.MenuFrame{State: u.State, Data: u.StateData})
			if over := len(u.MenuStack) - MaxMenuDepth; over > 0 {
				u.MenuStack = append([]model.MenuFrame(nil), u.MenuStack[over:]...)
			}
		}
		u.State = target
		u.StateData = data
	})
}

func (s *sessionUC) Replace(ctx context.Context, userID int64, target model.State, data map[string]string) (adapter.Screen, error) {
	defer logging.TraceDuration(s.log, "SessionUC.Replace")()
	return s.transition(ctx, userID, func(u *model.User) {
		u.State = target
		u.StateData = data
	})
}

func (s *sessionUC) Back(ctx context.Context, userID int64) (adapter.Screen, error) {
	defer logging.TraceDuration(s.log, "SessionUC.Back")()
	return s.transition(ctx, userID, func(u *model.User) {
		n := len(u.MenuStack)
		if n == 0 {
			u.State = model.StateMainMenu
			u.StateData = nil
			return
		}
		f := u.MenuStack[n-1]
		u.MenuStack = u.MenuStack[:n-1]
		u.State = f.State
		u.StateData = f.Data
	})
}

func (s *sessionUC) Home(ctx context.Context, userID int64) (adapter.Screen, error) {
	defer logging.TraceDuration(s.log, "SessionUC.Home")()
	return s.transition(ctx, userID, func(u *model.User) {
		u.MenuStack = nil
		u.State = model.StateMainMenu
		u.StateData = nil
	})
}

func (s *sessionUC) Show(ctx context.Context, userID int64) (adapter.Screen, error) {
	defer logging.TraceDuration(s.log, "SessionUC.Show")()
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return adapter.Screen{}, err
	}
	rc, err := s.Context(ctx, u)
	if err != nil {
		return adapter.Screen{}, err
	}
	return Resolve(u.State)(rc)
}

func (s *sessionUC) Context(ctx context.Context, u *model.User) (RenderContext, error) {
	tpls, err := s.templates.List(ctx)
	if err != nil {
		return RenderContext{}, err
	}
	achs, err := s.achievements.ListAchievements(ctx)
	if err != nil {
		return RenderContext{}, err
	}
	rc := RenderContext{
		Catalog:      s.catalog,
		Economy:      s.cfg,
		Templates:    tpls,
		Achievements: achs,
		BotUsername:  s.opts.BotUsername,
		Channel:      s.opts.Channel,
		Now:          s.clock.now(),
	}
	s.bind(&rc, u)
	return rc, nil
}

func (s *sessionUC) bind(rc *RenderContext, u *model.User) {
	rc.User = u
	lang := u.Settings.Language
	rc.T = func(key string, args ...any) string { return s.loc.T(lang, key, args...) }
}

// transition loads the read-only render inputs first; the store lock is held
// while fn and the render run, so nothing inside may call back into the store.
func (s *sessionUC) transition(ctx context.Context, userID int64, fn func(u *model.User)) (adapter.Screen, error) {
	rc, err := s.Context(ctx, &model.User{})
	if err != nil {
		return adapter.Screen{}, err
	}
	var screen adapter.Screen
	_, err = s.users.Update(ctx, userID, func(u *model.User) error {
		resetUnknown(u)
		fn(u)
		resetUnknown(u)
		s.bind(&rc, u)
		sc, err := Resolve(u.State)(rc)
		if err != nil {
			return err
		}
		screen = sc
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("tg_id", userID).Msg("transition discarded")
		return adapter.Screen{}, err
	}
	return screen, nil
}

// resetUnknown moves a record left on a retired state to the main menu.
func resetUnknown(u *model.User) {
	if !u.State.Known() {
		u.State = model.StateMainMenu
		u.StateData = nil
	}
}
