package usecase

import (
	"context"

	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

// AccessGrant is the outcome of a gate check. Referrer is set when this check
// paid out a pending referral.
type AccessGrant struct {
	Allowed  bool
	Referrer *model.User
	User     *model.User
}

type AccessUseCase interface {
	EnsureAccess(ctx context.Context, userID int64) (AccessGrant, error)
}

type AccessOptions struct {
	AdminID int64
	// Latch skips the membership check once it has succeeded.
	Latch bool
	// An empty Channel disables the gate.
	Channel string
}

type accessUC struct {
	users      repository.UserRepository
	membership adapter.MembershipChecker
	economy    EconomyUseCase
	opts       AccessOptions
	log        *zerolog.Logger
}

func NewAccessUseCase(
	users repository.UserRepository,
	membership adapter.MembershipChecker,
	economy EconomyUseCase,
	opts AccessOptions,
	logger *zerolog.Logger,
) *accessUC {
	return &accessUC{users: users, membership: membership, economy: economy, opts: opts, log: logging.Component(logger, "access_uc")}
}

func (a *accessUC) EnsureAccess(ctx context.Context, userID int64) (AccessGrant, error) {
	defer logging.TraceDuration(a.log, "AccessUC.EnsureAccess")()
	u, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return AccessGrant{}, err
	}
	if userID == a.opts.AdminID {
		metrics.IncAccessCheck("admin")
		return AccessGrant{Allowed: true, User: u}, nil
	}
	if a.opts.Latch && u.HasSubscribed {
		metrics.IncAccessCheck("latched")
		grant := AccessGrant{Allowed: true, User: u}
		a.payPendingReferral(ctx, &grant)
		return grant, nil
	}

	member := true
	if a.opts.Channel != "" && a.membership != nil {
		ok, err := a.membership.IsSubscribed(ctx, userID)
		if err != nil {
			a.log.Warn().Err(err).Int64("tg_id", userID).Msg("membership check failed, denying")
			ok = false
		}
		member = ok
	}
	if !member {
		metrics.IncAccessCheck("denied")
		return AccessGrant{Allowed: false, User: u}, nil
	}
	metrics.IncAccessCheck("granted")

	grant := AccessGrant{Allowed: true, User: u}
	if !u.HasSubscribed {
		u, err = a.users.Update(ctx, userID, func(u *model.User) error {
			u.HasSubscribed = true
			return nil
		})
		if err != nil {
			return AccessGrant{}, err
		}
		grant.User = u
	}
	a.payPendingReferral(ctx, &grant)
	return grant, nil
}

// payPendingReferral credits a stored referral code for a user who has
// passed the gate, including one latched before the code arrived.
func (a *accessUC) payPendingReferral(ctx context.Context, grant *AccessGrant) {
	u := grant.User
	if u.PendingReferral == "" || u.ReferralUsed {
		return
	}
	ref, err := a.economy.CreditReferral(ctx, u.ID)
	if err != nil {
		a.log.Info().Err(err).Int64("tg_id", u.ID).Msg("pending referral not credited")
		return
	}
	if ref == nil {
		return
	}
	grant.Referrer = ref
	if fresh, err := a.users.FindByID(ctx, u.ID); err == nil {
		grant.User = fresh
	}
}
