package ai

import (
	"context"

	"telegram-ai-stars/internal/domain/ports/adapter"
)

// Compile-time check
var (
	_ adapter.TextGenerator  = (*limitedAI)(nil)
	_ adapter.ImageGenerator = (*limitedAI)(nil)
)

// limitedAI caps concurrent provider calls. Text and image calls share one
// semaphore.
type limitedAI struct {
	text   adapter.TextGenerator
	images adapter.ImageGenerator
	sem    chan struct{}
}

// NewLimitedAI wraps both generators. Either may be nil. maxConcurrent <= 0
// means no limit.
func NewLimitedAI(text adapter.TextGenerator, images adapter.ImageGenerator, maxConcurrent int) (adapter.TextGenerator, adapter.ImageGenerator) {
	if maxConcurrent <= 0 {
		return text, images
	}
	l := &limitedAI{text: text, images: images, sem: make(chan struct{}, maxConcurrent)}
	var (
		t adapter.TextGenerator
		i adapter.ImageGenerator
	)
	if text != nil {
		t = l
	}
	if images != nil {
		i = l
	}
	return t, i
}

func (l *limitedAI) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedAI) release() { <-l.sem }

func (l *limitedAI) GenerateText(ctx context.Context, req adapter.TextRequest) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer l.release()
	return l.text.GenerateText(ctx, req)
}

func (l *limitedAI) ImageURL(ctx context.Context, prompt string) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer l.release()
	return l.images.ImageURL(ctx, prompt)
}
