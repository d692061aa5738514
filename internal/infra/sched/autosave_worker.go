package sched

import (
	"context"
	"errors"
	"time"

	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/logging"

	"github.com/rs/zerolog"
)

const autosaveLockKey = "lock:autosave"

// Locker guards the flush when several replicas share one backend.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// AutosaveWorker flushes dirty store state on every tick.
type AutosaveWorker struct {
	interval  time.Duration
	persister repository.Persister
	locker    Locker
	log       *zerolog.Logger
}

// NewAutosaveWorker builds the worker. locker may be nil.
func NewAutosaveWorker(interval time.Duration, persister repository.Persister, locker Locker, logger *zerolog.Logger) *AutosaveWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &AutosaveWorker{
		interval:  interval,
		persister: persister,
		locker:    locker,
		log:       logging.Component(logger, "AutosaveWorker"),
	}
}

func (w *AutosaveWorker) Name() string { return "autosave" }

func (w *AutosaveWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting autosave worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping autosave worker")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				w.log.Error().Err(err).Msg("autosave failed")
			}
		}
	}
}

// Flush saves once. A clean store is not written.
func (w *AutosaveWorker) Flush(ctx context.Context) error {
	if w.persister.DirtyCount() == 0 {
		return nil
	}
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, autosaveLockKey, w.interval)
		if err != nil {
			return err
		}
		defer func() {
			// an unreleased lock expires with its TTL
			if err := w.locker.Unlock(context.WithoutCancel(ctx), autosaveLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("autosave unlock failed")
			}
		}()
	}
	n := w.persister.DirtyCount()
	if err := w.persister.SaveAll(ctx); err != nil {
		return err
	}
	w.log.Debug().Int("dirty", n).Msg("autosave done")
	return nil
}

// FinalFlush saves on shutdown with its own deadline, since ctx of the
// running process is already cancelled by then.
func (w *AutosaveWorker) FinalFlush(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := w.persister.SaveAll(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		w.log.Error().Int("dirty", w.persister.DirtyCount()).Msg("final flush timed out")
	}
	return err
}
