package repository

import (
	"context"
	"time"

	"telegram-ai-stars/internal/domain/model"
)

type PromoCodeRepository interface {
	Create(ctx context.Context, p *model.PromoCode) error
	FindByCode(ctx context.Context, code string) (*model.PromoCode, error)
	List(ctx context.Context) ([]*model.PromoCode, error)
	SetActive(ctx context.Context, code string, active bool) error
	Delete(ctx context.Context, code string) error
	// Redeem applies the code to the user and records the use in one step.
	Redeem(ctx context.Context, code string, userID int64, now time.Time) (*model.PromoCode, *model.User, error)
}
