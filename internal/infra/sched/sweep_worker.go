package sched

import (
	"context"
	"time"

	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/usecase"

	"github.com/rs/zerolog"
)

// SweepWorker periodically removes users idle longer than idleAfter.
type SweepWorker struct {
	interval  time.Duration
	idleAfter time.Duration
	users     usecase.UserUseCase
	log       *zerolog.Logger
}

func NewSweepWorker(interval, idleAfter time.Duration, users usecase.UserUseCase, logger *zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if idleAfter <= 0 {
		idleAfter = 720 * time.Hour
	}
	return &SweepWorker{
		interval:  interval,
		idleAfter: idleAfter,
		users:     users,
		log:       logging.Component(logger, "SweepWorker"),
	}
}

func (w *SweepWorker) Name() string { return "sweep" }

func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("idle_after", w.idleAfter).Msg("Starting sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	n, err := w.users.SweepIdle(ctx, w.idleAfter)
	if err != nil {
		w.log.Error().Err(err).Msg("sweep worker error")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("idle users removed")
	}
}
