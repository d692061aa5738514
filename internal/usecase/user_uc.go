package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"telegram-ai-stars/internal/config"
	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase exposes user-related operations used by bot/admin flows.
type UserUseCase interface {
	// Enter registers the user on first contact, records the interaction and
	// clears a lapsed premium. The bool reports whether the user is new.
	Enter(ctx context.Context, id int64, username, firstName string) (*model.User, bool, error)
	AttachReferral(ctx context.Context, id int64, code string) error
	Get(ctx context.Context, id int64) (*model.User, error)
	SetLanguage(ctx context.Context, id int64, lang string) (*model.User, error)
	ToggleSetting(ctx context.Context, id int64, name string) (*model.User, error)
	SetImageModel(ctx context.Context, id int64, key string) (*model.User, error)
	SetTextModel(ctx context.Context, id int64, key string) (*model.User, error)
	SetImageCount(ctx context.Context, id int64, n int) (*model.User, error)
	SweepIdle(ctx context.Context, idleAfter time.Duration) (int, error)
	Count(ctx context.Context) (int, error)
}

type userUC struct {
	users     repository.UserRepository
	stats     repository.StatsRepository
	catalog   *model.Catalog
	cfg       config.EconomyConfig
	languages []string
	adminID   int64
	clock     Clock
	log       *zerolog.Logger
}

// NewUserUseCase builds the user use case. The first entry of languages is
// the default for new users.
func NewUserUseCase(
	users repository.UserRepository,
	stats repository.StatsRepository,
	catalog *model.Catalog,
	cfg config.EconomyConfig,
	languages []string,
	adminID int64,
	clock Clock,
	logger *zerolog.Logger,
) *userUC {
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	return &userUC{
		users:     users,
		stats:     stats,
		catalog:   catalog,
		cfg:       cfg,
		languages: languages,
		adminID:   adminID,
		clock:     clock,
		log:       logging.Component(logger, "user_uc"),
	}
}

func (u *userUC) Enter(ctx context.Context, id int64, username, firstName string) (*model.User, bool, error) {
	defer logging.TraceDuration(u.log, "UserUC.Enter")()
	now := u.clock.now()
	_, created, err := u.users.GetOrCreate(ctx, id, func() *model.User {
		nu := model.NewUser(id, username, u.cfg.StartBalance, now)
		nu.FirstName = firstName
		nu.Settings.Language = u.languages[0]
		return nu
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		bumpStat(ctx, u.stats, u.log, model.StatUsersCreated, 1)
		metrics.IncUsersRegistered()
		u.log.Info().Int64("tg_id", id).Msg("user registered")
	}
	usr, err := u.users.Update(ctx, id, func(usr *model.User) error {
		usr.Touch(now)
		if usr.ExpirePremiumIfDue(now) {
			u.log.Info().Int64("tg_id", id).Msg("premium expired")
		}
		if username != "" {
			usr.Username = username
		}
		if firstName != "" {
			usr.FirstName = firstName
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return usr, created, nil
}

// AttachReferral remembers a referral code until the access gate credits it.
func (u *userUC) AttachReferral(ctx context.Context, id int64, code string) error {
	defer logging.TraceDuration(u.log, "UserUC.AttachReferral")()
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.ErrReferralInvalid
	}
	usr, err := u.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if usr.ReferralUsed || usr.InvitedBy != "" {
		return domain.ErrReferralUsed
	}
	if usr.ReferralCode == code {
		return domain.ErrReferralSelf
	}
	owner, err := u.users.FindByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrReferralInvalid
		}
		return err
	}
	if owner.ID == id {
		return domain.ErrReferralSelf
	}
	_, err = u.users.Update(ctx, id, func(usr *model.User) error {
		usr.PendingReferral = code
		return nil
	})
	return err
}

func (u *userUC) Get(ctx context.Context, id int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Get")()
	return u.users.FindByID(ctx, id)
}

func (u *userUC) SetLanguage(ctx context.Context, id int64, lang string) (*model.User, error) {
	known := false
	for _, l := range u.languages {
		if l == lang {
			known = true
			break
		}
	}
	if !known {
		return nil, domain.ErrInvalidArgument
	}
	return u.users.Update(ctx, id, func(usr *model.User) error {
		usr.Settings.Language = lang
		return nil
	})
}

func (u *userUC) ToggleSetting(ctx context.Context, id int64, name string) (*model.User, error) {
	return u.users.Update(ctx, id, func(usr *model.User) error {
		switch name {
		case SettingNotifications:
			usr.Settings.Notifications = !usr.Settings.Notifications
		case SettingAutoTranslate:
			usr.Settings.AutoTranslate = !usr.Settings.AutoTranslate
		default:
			return domain.ErrInvalidArgument
		}
		return nil
	})
}

func (u *userUC) SetImageModel(ctx context.Context, id int64, key string) (*model.User, error) {
	m, ok := u.catalog.ImageModel(key)
	if !ok {
		return nil, domain.ErrUnknownModel
	}
	return u.users.Update(ctx, id, func(usr *model.User) error {
		if m.PremiumOnly && !usr.IsPremium {
			return domain.ErrPremiumRequired
		}
		usr.ImageModel = m.Key
		return nil
	})
}

func (u *userUC) SetTextModel(ctx context.Context, id int64, key string) (*model.User, error) {
	m, ok := u.catalog.TextModel(key)
	if !ok {
		return nil, domain.ErrUnknownModel
	}
	return u.users.Update(ctx, id, func(usr *model.User) error {
		if m.PremiumOnly && !usr.IsPremium {
			return domain.ErrPremiumRequired
		}
		usr.TextModel = m.Key
		return nil
	})
}

// SetImageCount selects how many variants a premium image request returns.
func (u *userUC) SetImageCount(ctx context.Context, id int64, n int) (*model.User, error) {
	if n < 1 || n > u.cfg.MaxImageCount {
		return nil, domain.ErrInvalidArgument
	}
	return u.users.Update(ctx, id, func(usr *model.User) error {
		if !usr.IsPremium {
			return domain.ErrPremiumRequired
		}
		usr.ImageCount = n
		return nil
	})
}

// SweepIdle removes users idle for longer than idleAfter. The admin is kept.
func (u *userUC) SweepIdle(ctx context.Context, idleAfter time.Duration) (int, error) {
	defer logging.TraceDuration(u.log, "UserUC.SweepIdle")()
	if idleAfter <= 0 {
		return 0, nil
	}
	n, err := u.users.DeleteIdle(ctx, u.clock.now().Add(-idleAfter), u.adminID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		bumpStat(ctx, u.stats, u.log, model.StatUsersSwept, int64(n))
		metrics.AddUsersSwept(n)
		u.log.Info().Int("removed", n).Msg("idle users swept")
	}
	return n, nil
}

func (u *userUC) Count(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "UserUC.Count")()
	return u.users.Count(ctx)
}
