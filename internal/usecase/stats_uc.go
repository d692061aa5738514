package usecase

import (
	"context"
	"time"

	"telegram-ai-stars/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// Overview is the admin statistics summary.
type Overview struct {
	Users        int
	Premium      int
	ActiveDay    int
	TotalStars   int64
	DirtyRecords int
	Counters     map[string]int64
}

type StatsUseCase interface {
	Overview(ctx context.Context) (Overview, error)
	InactiveUsers(ctx context.Context, olderThan time.Time) (int, error)
}

type statsUC struct {
	users     repository.UserRepository
	stats     repository.StatsRepository
	persister repository.Persister
	clock     Clock

	log *zerolog.Logger
}

func NewStatsUseCase(users repository.UserRepository, stats repository.StatsRepository, persister repository.Persister, clock Clock, logger *zerolog.Logger) *statsUC {
	return &statsUC{users: users, stats: stats, persister: persister, clock: clock, log: logger}
}

func (s *statsUC) Overview(ctx context.Context) (Overview, error) {
	all, err := s.users.List(ctx)
	if err != nil {
		return Overview{}, err
	}
	snap, err := s.stats.Snapshot(ctx)
	if err != nil {
		return Overview{}, err
	}
	now := s.clock.now()
	dayAgo := now.Add(-24 * time.Hour)
	o := Overview{Users: len(all), Counters: snap.Counters}
	for _, u := range all {
		if u.PremiumDaysLeft(now) != 0 {
			o.Premium++
		}
		if u.LastInteraction.After(dayAgo) {
			o.ActiveDay++
		}
		o.TotalStars += u.Stars
	}
	if s.persister != nil {
		o.DirtyRecords = s.persister.DirtyCount()
	}
	return o, nil
}

func (s *statsUC) InactiveUsers(ctx context.Context, olderThan time.Time) (int, error) {
	all, err := s.users.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, u := range all {
		if u.LastInteraction.Before(olderThan) {
			n++
		}
	}
	return n, nil
}

// bumpStat records a counter. A failed write costs only the statistic.
func bumpStat(ctx context.Context, stats repository.StatsRepository, log *zerolog.Logger, key string, n int64) {
	if err := stats.Inc(ctx, key, n); err != nil {
		log.Warn().Err(err).Str("counter", key).Int64("n", n).Msg("stat counter not recorded")
	}
}
