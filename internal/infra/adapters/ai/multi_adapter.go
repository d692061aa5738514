package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/logging"
)

var _ adapter.TextGenerator = (*MultiAIAdapter)(nil)

// MultiAIAdapter sends text requests to the configured provider and falls
// back to the others in order when it fails. Permanent errors are returned
// at once so a bad prompt is not sent everywhere.
type MultiAIAdapter struct {
	order      []string
	byProvider map[string]adapter.TextGenerator
	log        *zerolog.Logger
}

// NewMultiAIAdapter puts defaultProvider first, then the rest of order.
// Unknown names are skipped.
func NewMultiAIAdapter(defaultProvider string, order []string, byProvider map[string]adapter.TextGenerator, logger *zerolog.Logger) *MultiAIAdapter {
	m := &MultiAIAdapter{byProvider: byProvider, log: logging.Component(logger, "multi_ai")}
	seen := map[string]bool{}
	for _, p := range append([]string{defaultProvider}, order...) {
		p = strings.ToLower(p)
		if seen[p] || byProvider[p] == nil {
			continue
		}
		seen[p] = true
		m.order = append(m.order, p)
	}
	return m
}

// Providers lists the call order.
func (m *MultiAIAdapter) Providers() []string { return append([]string(nil), m.order...) }

func (m *MultiAIAdapter) GenerateText(ctx context.Context, req adapter.TextRequest) (string, error) {
	if len(m.order) == 0 {
		return "", errors.New("no text provider configured")
	}
	var errs []error
	for _, p := range m.order {
		out, err := m.byProvider[p].GenerateText(ctx, req)
		if err == nil {
			return out, nil
		}
		if adapter.IsPermanent(err) || ctx.Err() != nil {
			return "", err
		}
		m.log.Warn().Err(err).Str("provider", p).Msg("text provider failed, trying next")
		errs = append(errs, err)
	}
	// keep the transient classification for the retry loop
	return "", errors.Join(errs...)
}
