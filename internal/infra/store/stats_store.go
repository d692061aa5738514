package store

import (
	"context"

	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/repository"
)

// StatsStore is the aggregate counters view of a Store.
type StatsStore struct{ s *Store }

func (st *StatsStore) Inc(_ context.Context, key string, n int64) error {
	if n == 0 {
		return nil
	}
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Inc(key, n)
	s.stats.UpdatedAt = s.opts.Now()
	s.touchDoc(repository.DocStats)
	return nil
}

func (st *StatsStore) Snapshot(_ context.Context) (model.Stats, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.Clone(), nil
}
