package usecase

import (
	"context"
	"errors"

	"telegram-ai-stars/internal/config"
	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ EconomyUseCase = (*economyUC)(nil)

// EconomyUseCase applies the stars rules through atomic store updates.
type EconomyUseCase interface {
	Charge(ctx context.Context, userID, cost int64, reason string) (*model.User, error)
	Credit(ctx context.Context, userID, amount int64, reason string) (*model.User, error)
	// CreditReferral pays the pending referral of refereeID, if any, and
	// returns the credited referrer. A nil referrer with nil error means there
	// was nothing to pay.
	CreditReferral(ctx context.Context, refereeID int64) (*model.User, error)
	ClaimDailyBonus(ctx context.Context, userID int64) (int64, *model.User, error)
	GrantPremium(ctx context.Context, userID int64, days int) (*model.User, error)
	WithdrawReferral(ctx context.Context, userID int64) (int64, *model.User, error)
	ValidatePurchase(itemID string, amount int64) (model.ShopItem, error)
	Purchase(ctx context.Context, userID int64, itemID string, amount int64) (*model.User, model.ShopItem, error)
	Config() config.EconomyConfig
}

type economyUC struct {
	users        repository.UserRepository
	stats        repository.StatsRepository
	achievements repository.AchievementRepository
	catalog      *model.Catalog
	cfg          config.EconomyConfig
	clock        Clock
	log          *zerolog.Logger
}

func NewEconomyUseCase(
	users repository.UserRepository,
	stats repository.StatsRepository,
	achievements repository.AchievementRepository,
	catalog *model.Catalog,
	cfg config.EconomyConfig,
	clock Clock,
	logger *zerolog.Logger,
) *economyUC {
	return &economyUC{
		users:        users,
		stats:        stats,
		achievements: achievements,
		catalog:      catalog,
		cfg:          cfg,
		clock:        clock,
		log:          logging.Component(logger, "economy_uc"),
	}
}

func (e *economyUC) Config() config.EconomyConfig { return e.cfg }

func (e *economyUC) Charge(ctx context.Context, userID, cost int64, reason string) (*model.User, error) {
	defer logging.TraceDuration(e.log, "EconomyUC.Charge")()
	var spent int64
	u, err := e.users.Update(ctx, userID, func(u *model.User) error {
		before := u.Stars
		if err := u.RequireStars(cost); err != nil {
			return err
		}
		spent = before - u.Stars
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.recordSpent(ctx, reason, spent)
	return u, nil
}

func (e *economyUC) Credit(ctx context.Context, userID, amount int64, reason string) (*model.User, error) {
	defer logging.TraceDuration(e.log, "EconomyUC.Credit")()
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	u, err := e.users.Update(ctx, userID, func(u *model.User) error {
		u.Credit(amount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.recordCredited(ctx, reason, amount)
	return u, nil
}

func (e *economyUC) CreditReferral(ctx context.Context, refereeID int64) (*model.User, error) {
	defer logging.TraceDuration(e.log, "EconomyUC.CreditReferral")()
	referee, err := e.users.FindByID(ctx, refereeID)
	if err != nil {
		return nil, err
	}
	if referee.PendingReferral == "" || referee.ReferralUsed {
		return nil, nil
	}
	referrer, err := e.users.FindByReferralCode(ctx, referee.PendingReferral)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.clearPending(ctx, refereeID)
			return nil, domain.ErrReferralInvalid
		}
		return nil, err
	}
	if referrer.ID == refereeID {
		e.clearPending(ctx, refereeID)
		return nil, domain.ErrReferralSelf
	}

	all, err := e.achievements.ListAchievements(ctx)
	if err != nil {
		return nil, err
	}
	now := e.clock.now()
	var credited *model.User
	err = e.users.UpdatePair(ctx, referrer.ID, refereeID, func(a, b *model.User) error {
		if !model.CreditReferral(a, b, e.cfg.ReferralBonus, e.cfg.RefereeBonus()) {
			return domain.ErrReferralUsed
		}
		a.EvaluateAchievements(all, now)
		credited = a.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	bumpStat(ctx, e.stats, e.log, model.StatReferrals, 1)
	e.recordCredited(ctx, "referral", e.cfg.RefereeBonus())
	e.log.Info().Int64("referrer", referrer.ID).Int64("referee", refereeID).Msg("referral credited")
	return credited, nil
}

func (e *economyUC) clearPending(ctx context.Context, id int64) {
	_, err := e.users.Update(ctx, id, func(u *model.User) error {
		u.PendingReferral = ""
		return nil
	})
	if err != nil {
		e.log.Warn().Err(err).Int64("tg_id", id).Msg("failed to clear pending referral")
	}
}

func (e *economyUC) ClaimDailyBonus(ctx context.Context, userID int64) (int64, *model.User, error) {
	defer logging.TraceDuration(e.log, "EconomyUC.ClaimDailyBonus")()
	var granted int64
	u, err := e.users.Update(ctx, userID, func(u *model.User) error {
		n, err := u.ClaimDailyBonus(e.clock.now(), e.cfg.Location(), e.cfg.DailyBonus)
		granted = n
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	bumpStat(ctx, e.stats, e.log, model.StatDailyBonus, 1)
	e.recordCredited(ctx, "daily_bonus", granted)
	return granted, u, nil
}

func (e *economyUC) GrantPremium(ctx context.Context, userID int64, days int) (*model.User, error) {
	defer logging.TraceDuration(e.log, "EconomyUC.GrantPremium")()
	now := e.clock.now()
	return e.users.Update(ctx, userID, func(u *model.User) error {
		u.GrantPremium(days, now)
		return nil
	})
}

func (e *economyUC) WithdrawReferral(ctx context.Context, userID int64) (int64, *model.User, error) {
	defer logging.TraceDuration(e.log, "EconomyUC.WithdrawReferral")()
	var amount int64
	u, err := e.users.Update(ctx, userID, func(u *model.User) error {
		n, err := u.WithdrawReferral(e.cfg.WithdrawMin)
		amount = n
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	e.recordCredited(ctx, "withdraw", amount)
	return amount, u, nil
}

// ValidatePurchase checks an invoice before Telegram charges the user.
func (e *economyUC) ValidatePurchase(itemID string, amount int64) (model.ShopItem, error) {
	item, ok := e.catalog.ShopItem(itemID)
	if !ok {
		return model.ShopItem{}, domain.ErrUnknownShopItem
	}
	if amount != item.Price {
		return model.ShopItem{}, domain.ErrInvalidArgument
	}
	return item, nil
}

// Purchase applies a paid shop item. amount is what Telegram reported as paid.
func (e *economyUC) Purchase(ctx context.Context, userID int64, itemID string, amount int64) (*model.User, model.ShopItem, error) {
	defer logging.TraceDuration(e.log, "EconomyUC.Purchase")()
	item, err := e.ValidatePurchase(itemID, amount)
	if err != nil {
		metrics.IncPayment("rejected")
		return nil, model.ShopItem{}, err
	}
	now := e.clock.now()
	u, err := e.users.Update(ctx, userID, func(u *model.User) error {
		u.ApplyPurchase(item, now)
		return nil
	})
	if err != nil {
		metrics.IncPayment("failed")
		return nil, model.ShopItem{}, err
	}
	metrics.IncPayment("success")
	metrics.AddPaymentRevenue("XTR", item.Price)
	bumpStat(ctx, e.stats, e.log, model.StatPurchases, 1)
	e.recordCredited(ctx, "purchase", item.Stars)
	e.log.Info().Int64("tg_id", userID).Str("item", item.ID).Int64("price", item.Price).Msg("purchase applied")
	return u, item, nil
}

func (e *economyUC) recordSpent(ctx context.Context, reason string, n int64) {
	if n <= 0 {
		return
	}
	bumpStat(ctx, e.stats, e.log, model.StatStarsSpent, n)
	metrics.AddStarsSpent(reason, n)
}

func (e *economyUC) recordCredited(ctx context.Context, reason string, n int64) {
	if n <= 0 {
		return
	}
	bumpStat(ctx, e.stats, e.log, model.StatStarsCredited, n)
	metrics.AddStarsCredited(reason, n)
}
