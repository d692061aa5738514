package usecase

import (
	"context"

	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ TemplateUseCase = (*templateUC)(nil)

type TemplateUseCase interface {
	List(ctx context.Context) ([]*model.Template, error)
	Get(ctx context.Context, id string) (*model.Template, error)
	// Save creates the template or replaces an existing one with the same id.
	Save(ctx context.Context, id, title, pattern string, category model.TemplateCategory) (*model.Template, error)
	Delete(ctx context.Context, id string) error
}

type templateUC struct {
	templates repository.TemplateRepository
	clock     Clock
	log       *zerolog.Logger
}

func NewTemplateUseCase(templates repository.TemplateRepository, clock Clock, logger *zerolog.Logger) *templateUC {
	return &templateUC{templates: templates, clock: clock, log: logging.Component(logger, "template_uc")}
}

func (t *templateUC) List(ctx context.Context) ([]*model.Template, error) {
	return t.templates.List(ctx)
}

func (t *templateUC) Get(ctx context.Context, id string) (*model.Template, error) {
	return t.templates.FindByID(ctx, id)
}

func (t *templateUC) Save(ctx context.Context, id, title, pattern string, category model.TemplateCategory) (*model.Template, error) {
	defer logging.TraceDuration(t.log, "TemplateUC.Save")()
	tpl, err := model.NewTemplate(id, title, pattern, category, t.clock.now())
	if err != nil {
		return nil, err
	}
	if err := t.templates.Save(ctx, tpl); err != nil {
		return nil, err
	}
	t.log.Info().Str("template", tpl.ID).Msg("template saved")
	return t.templates.FindByID(ctx, tpl.ID)
}

func (t *templateUC) Delete(ctx context.Context, id string) error {
	defer logging.TraceDuration(t.log, "TemplateUC.Delete")()
	return t.templates.Delete(ctx, id)
}
