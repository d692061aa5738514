package repository

import (
	"context"

	"telegram-ai-stars/internal/domain/model"
)

type StatsRepository interface {
	Inc(ctx context.Context, key string, n int64) error
	Snapshot(ctx context.Context) (model.Stats, error)
}
