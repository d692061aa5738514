package store

import (
	"context"
	"sort"
	"time"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/repository"
)

// TemplateStore is the template view of a Store.
type TemplateStore struct{ s *Store }

func (t *TemplateStore) List(_ context.Context) ([]*model.Template, error) {
	s := t.s
	s.mu.RLock()
	out := make([]*model.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		c := *tpl
		out = append(out, &c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *TemplateStore) FindByID(_ context.Context, id string) (*model.Template, error) {
	s := t.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *tpl
	return &c, nil
}

// Save inserts or replaces a template, keeping the usage count of an existing one.
func (t *TemplateStore) Save(_ context.Context, tpl *model.Template) error {
	if tpl == nil || tpl.ID == "" {
		return domain.ErrInvalidArgument
	}
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *tpl
	if old, ok := s.templates[c.ID]; ok {
		c.UsageCount = old.UsageCount
		c.CreatedAt = old.CreatedAt
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.templates[c.ID] = &c
	s.touchDoc(repository.DocTemplates)
	return nil
}

func (t *TemplateStore) Delete(_ context.Context, id string) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.templates, id)
	s.touchDoc(repository.DocTemplates)
	return nil
}

func (t *TemplateStore) IncUsage(_ context.Context, id string) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.templates[id]
	if !ok {
		return domain.ErrNotFound
	}
	tpl.UsageCount++
	s.touchDoc(repository.DocTemplates)
	return nil
}
