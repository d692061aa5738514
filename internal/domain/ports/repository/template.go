package repository

import (
	"context"

	"telegram-ai-stars/internal/domain/model"
)

type TemplateRepository interface {
	List(ctx context.Context) ([]*model.Template, error)
	FindByID(ctx context.Context, id string) (*model.Template, error)
	Save(ctx context.Context, t *model.Template) error
	Delete(ctx context.Context, id string) error
	IncUsage(ctx context.Context, id string) error
}
