package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/logging"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Editable user fields.
const (
	FieldStars       = "stars"
	FieldPremiumDays = "premium_days" // N > 0 sets N days, 0 revokes, -1 is forever
)

// Compile-time check
var _ AdminUseCase = (*adminUC)(nil)

type AdminUseCase interface {
	// Login opens a chat admin session when the password matches.
	Login(ctx context.Context, userID int64, password string) error
	Logout(ctx context.Context, userID int64) error
	Authorized(ctx context.Context, userID int64) bool
	CheckPassword(password string) bool
	InspectUser(ctx context.Context, id int64) (*model.User, error)
	EditUser(ctx context.Context, id int64, field, value string) (*model.User, error)
}

type AdminOptions struct {
	AdminID      int64
	PasswordHash string
	SessionTTL   time.Duration
}

type adminUC struct {
	users repository.UserRepository
	opts  AdminOptions
	clock Clock
	log   *zerolog.Logger
}

func NewAdminUseCase(users repository.UserRepository, opts AdminOptions, clock Clock, logger *zerolog.Logger) *adminUC {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	return &adminUC{users: users, opts: opts, clock: clock, log: logging.Component(logger, "admin_uc")}
}

func (a *adminUC) CheckPassword(password string) bool {
	if a.opts.PasswordHash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.opts.PasswordHash), []byte(password)) == nil
}

func (a *adminUC) Login(ctx context.Context, userID int64, password string) error {
	defer logging.TraceDuration(a.log, "AdminUC.Login")()
	if userID != a.opts.AdminID || !a.CheckPassword(password) {
		a.log.Warn().Int64("tg_id", userID).Msg("admin login rejected")
		return domain.ErrUnauthorized
	}
	until := a.clock.now().Add(a.opts.SessionTTL)
	_, err := a.users.Update(ctx, userID, func(u *model.User) error {
		u.AdminUntil = &until
		return nil
	})
	if err != nil {
		return err
	}
	a.log.Info().Int64("tg_id", userID).Time("until", until).Msg("admin session opened")
	return nil
}

func (a *adminUC) Logout(ctx context.Context, userID int64) error {
	_, err := a.users.Update(ctx, userID, func(u *model.User) error {
		u.AdminUntil = nil
		return nil
	})
	return err
}

func (a *adminUC) Authorized(ctx context.Context, userID int64) bool {
	if userID != a.opts.AdminID {
		return false
	}
	u, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return false
	}
	return u.AdminActive(a.clock.now())
}

func (a *adminUC) InspectUser(ctx context.Context, id int64) (*model.User, error) {
	defer logging.TraceDuration(a.log, "AdminUC.InspectUser")()
	now := a.clock.now()
	return a.users.Update(ctx, id, func(u *model.User) error {
		if u.ExpirePremiumIfDue(now) {
			a.log.Info().Int64("tg_id", id).Msg("premium expired")
		}
		return nil
	})
}

func (a *adminUC) EditUser(ctx context.Context, id int64, field, value string) (*model.User, error) {
	defer logging.TraceDuration(a.log, "AdminUC.EditUser")()
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}
	now := a.clock.now()
	u, err := a.users.Update(ctx, id, func(u *model.User) error {
		switch field {
		case FieldStars:
			if n < 0 {
				return domain.ErrInvalidArgument
			}
			u.Stars = n
		case FieldPremiumDays:
			switch {
			case n < -1:
				return domain.ErrInvalidArgument
			case n == -1:
				u.IsPremium = true
				u.PremiumExpiry = nil
			case n == 0:
				u.IsPremium = false
				u.PremiumExpiry = nil
			default:
				exp := now.Add(time.Duration(n) * 24 * time.Hour)
				u.IsPremium = true
				u.PremiumExpiry = &exp
			}
		default:
			return domain.ErrFieldNotEditable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.log.Info().Int64("tg_id", id).Str("field", field).Int64("value", n).Msg("user edited by admin")
	return u, nil
}
