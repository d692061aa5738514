package repository

import (
	"context"

	"telegram-ai-stars/internal/domain/model"
)

type AchievementRepository interface {
	ListAchievements(ctx context.Context) ([]model.Achievement, error)
	SaveAchievement(ctx context.Context, a model.Achievement) error
}
