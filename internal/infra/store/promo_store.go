package store

import (
	"context"
	"sort"
	"time"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/repository"
)

// PromoStore is the promo-code view of a Store.
type PromoStore struct{ s *Store }

func (p *PromoStore) Create(_ context.Context, code *model.PromoCode) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.promos[code.Code]; ok {
		return domain.ErrAlreadyExists
	}
	s.promos[code.Code] = code.Clone()
	s.touchDoc(repository.DocPromoCodes)
	return nil
}

func (p *PromoStore) FindByCode(_ context.Context, code string) (*model.PromoCode, error) {
	s := p.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	pc, ok := s.promos[model.NormalizePromoCode(code)]
	if !ok {
		return nil, domain.ErrPromoNotFound
	}
	return pc.Clone(), nil
}

func (p *PromoStore) List(_ context.Context) ([]*model.PromoCode, error) {
	s := p.s
	s.mu.RLock()
	out := make([]*model.PromoCode, 0, len(s.promos))
	for _, pc := range s.promos {
		out = append(out, pc.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (p *PromoStore) SetActive(_ context.Context, code string, active bool) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.promos[model.NormalizePromoCode(code)]
	if !ok {
		return domain.ErrPromoNotFound
	}
	pc.Active = active
	s.touchDoc(repository.DocPromoCodes)
	return nil
}

func (p *PromoStore) Delete(_ context.Context, code string) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	code = model.NormalizePromoCode(code)
	if _, ok := s.promos[code]; !ok {
		return domain.ErrPromoNotFound
	}
	delete(s.promos, code)
	s.touchDoc(repository.DocPromoCodes)
	return nil
}

// Redeem updates the code and the user under one lock so neither side can
// change without the other.
func (p *PromoStore) Redeem(_ context.Context, code string, userID int64, now time.Time) (*model.PromoCode, *model.User, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.promos[model.NormalizePromoCode(code)]
	if !ok {
		return nil, nil, domain.ErrPromoNotFound
	}
	e, ok := s.users[userID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	tp, tu := pc.Clone(), e.user.Clone()
	if err := tp.Redeem(tu, now); err != nil {
		return nil, nil, err
	}
	s.promos[tp.Code] = tp
	s.touchDoc(repository.DocPromoCodes)
	s.swapLocked(e, tu)
	return tp.Clone(), tu.Clone(), nil
}
