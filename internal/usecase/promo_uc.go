package usecase

import (
	"context"
	"strings"

	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ PromoUseCase = (*promoUC)(nil)

type PromoUseCase interface {
	// Create stores a new code. An empty code gets a random one.
	Create(ctx context.Context, code string, kind model.PromoKind, value int64, limit int) (*model.PromoCode, error)
	Redeem(ctx context.Context, userID int64, code string) (*model.PromoCode, *model.User, error)
	List(ctx context.Context) ([]*model.PromoCode, error)
	SetActive(ctx context.Context, code string, active bool) error
	Delete(ctx context.Context, code string) error
}

type promoUC struct {
	promos repository.PromoCodeRepository
	stats  repository.StatsRepository
	clock  Clock
	log    *zerolog.Logger
}

func NewPromoUseCase(promos repository.PromoCodeRepository, stats repository.StatsRepository, clock Clock, logger *zerolog.Logger) *promoUC {
	return &promoUC{promos: promos, stats: stats, clock: clock, log: logging.Component(logger, "promo_uc")}
}

func randomPromoCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (p *promoUC) Create(ctx context.Context, code string, kind model.PromoKind, value int64, limit int) (*model.PromoCode, error) {
	defer logging.TraceDuration(p.log, "PromoUC.Create")()
	if strings.TrimSpace(code) == "" {
		code = randomPromoCode()
	}
	pc, err := model.NewPromoCode(code, kind, value, limit, p.clock.now())
	if err != nil {
		return nil, err
	}
	if err := p.promos.Create(ctx, pc); err != nil {
		return nil, err
	}
	p.log.Info().Str("code", pc.Code).Str("kind", string(kind)).Int64("value", value).Int("limit", limit).Msg("promo code created")
	return pc, nil
}

func (p *promoUC) Redeem(ctx context.Context, userID int64, code string) (*model.PromoCode, *model.User, error) {
	defer logging.TraceDuration(p.log, "PromoUC.Redeem")()
	pc, u, err := p.promos.Redeem(ctx, code, userID, p.clock.now())
	if err != nil {
		return nil, nil, err
	}
	bumpStat(ctx, p.stats, p.log, model.StatPromoRedeemed, 1)
	if pc.Kind == model.PromoStars {
		bumpStat(ctx, p.stats, p.log, model.StatStarsCredited, pc.Value)
		metrics.AddStarsCredited("promo", pc.Value)
	}
	p.log.Info().Str("code", pc.Code).Int64("tg_id", userID).Msg("promo code redeemed")
	return pc, u, nil
}

func (p *promoUC) List(ctx context.Context) ([]*model.PromoCode, error) {
	return p.promos.List(ctx)
}

func (p *promoUC) SetActive(ctx context.Context, code string, active bool) error {
	return p.promos.SetActive(ctx, code, active)
}

func (p *promoUC) Delete(ctx context.Context, code string) error {
	return p.promos.Delete(ctx, code)
}
