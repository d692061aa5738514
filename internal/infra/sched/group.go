package sched

import (
	"context"
	"errors"
	"sync"

	"telegram-ai-stars/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Worker is a background loop that runs until ctx is cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Group runs workers in the background. Start and Stop are idempotent.
type Group struct {
	workers []Worker
	log     *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGroup(logger *zerolog.Logger, workers ...Worker) *Group {
	return &Group{workers: workers, log: logging.Component(logger, "sched")}
}

func (g *Group) Start(parent context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	for _, w := range g.workers {
		g.wg.Add(1)
		go func(w Worker) {
			defer g.wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				g.log.Error().Err(err).Str("worker", w.Name()).Msg("worker stopped with error")
			}
		}(w)
	}
	g.log.Info().Int("workers", len(g.workers)).Msg("background workers started")
}

// Stop cancels every worker and waits for them to return.
func (g *Group) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	g.wg.Wait()
	g.log.Info().Msg("background workers stopped")
}
