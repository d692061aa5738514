package ai

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/logging"
)

var (
	_ adapter.TextGenerator  = (*NoopAIAdapter)(nil)
	_ adapter.ImageGenerator = (*NoopAIAdapter)(nil)
)

// NoopAIAdapter answers locally for development runs without network access.
type NoopAIAdapter struct {
	log *zerolog.Logger
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	return &NoopAIAdapter{log: logging.Component(logger, "noop_ai")}
}

func (a *NoopAIAdapter) GenerateText(ctx context.Context, req adapter.TextRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.log.Debug().Str("model", req.Model).Int("history", len(req.History)).Msg("noop text generation")
	return fmt.Sprintf("(noop) %s", req.Prompt), nil
}

func (a *NoopAIAdapter) ImageURL(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.log.Debug().Str("prompt", prompt).Msg("noop image generation")
	return "https://placehold.co/512x512?text=" + url.QueryEscape(prompt), nil
}
