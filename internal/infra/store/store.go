// File: internal/infra/store/store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Options controls the records synthesized on load.
type Options struct {
	Backend    string // label for metrics only
	AdminID    int64
	AdminStars int64
	Now        func() time.Time
}

type userEntry struct {
	user  *model.User
	rev   uint64
	dirty bool
}

// Store mirrors every document in memory, hands out clones, and tracks which
// records changed since the last successful flush. mu guards the data and is
// never held during backend I/O; saveMu serializes LoadAll and SaveAll.
type Store struct {
	backend repository.DocumentStore
	opts    Options
	log     *zerolog.Logger

	saveMu sync.Mutex

	mu           sync.RWMutex
	users        map[int64]*userEntry
	refIndex     map[string]int64
	promos       map[string]*model.PromoCode
	templates    map[string]*model.Template
	achievements map[string]model.Achievement
	stats        model.Stats

	// per-document revisions; a document is dirty while rev != saved
	docRev   map[string]uint64
	docSaved map[string]uint64
}

var (
	_ repository.UserRepository        = (*Store)(nil)
	_ repository.PromoCodeRepository   = (*PromoStore)(nil)
	_ repository.TemplateRepository    = (*TemplateStore)(nil)
	_ repository.AchievementRepository = (*Store)(nil)
	_ repository.StatsRepository       = (*StatsStore)(nil)
	_ repository.Persister             = (*Store)(nil)
)

func New(backend repository.DocumentStore, opts Options, logger *zerolog.Logger) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.With().Str("component", "store").Logger()
	s := &Store{backend: backend, opts: opts, log: &l}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.users = map[int64]*userEntry{}
	s.refIndex = map[string]int64{}
	s.promos = map[string]*model.PromoCode{}
	s.templates = map[string]*model.Template{}
	s.achievements = map[string]model.Achievement{}
	s.stats = model.Stats{Counters: map[string]int64{}}
	s.docRev = map[string]uint64{}
	s.docSaved = map[string]uint64{}
}

// touchDoc must be called with mu held for writing.
func (s *Store) touchDoc(name string) { s.docRev[name]++ }

// Promos, Templates and Stats expose the other repositories backed by the same data.
func (s *Store) Promos() *PromoStore       { return &PromoStore{s} }
func (s *Store) Templates() *TemplateStore { return &TemplateStore{s} }
func (s *Store) Stats() *StatsStore        { return &StatsStore{s} }

// -----------------------------
// Load / Save
// -----------------------------

// LoadAll replaces the in-memory mirror with the backend contents. Absent
// documents yield empty collections; the admin record, default achievements
// and default templates are synthesized when missing.
func (s *Store) LoadAll(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	var (
		users        map[int64]*model.User
		promos       map[string]*model.PromoCode
		templates    map[string]*model.Template
		achievements map[string]model.Achievement
		stats        model.Stats
	)
	targets := map[string]any{
		repository.DocUsers:        &users,
		repository.DocPromoCodes:   &promos,
		repository.DocTemplates:    &templates,
		repository.DocAchievements: &achievements,
		repository.DocStats:        &stats,
	}
	for _, name := range repository.AllDocuments() {
		raw, err := s.backend.Load(ctx, name)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && len(raw) == 0) {
			s.log.Info().Str("document", name).Msg("document absent, starting empty")
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		if err := json.Unmarshal(raw, targets[name]); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for id, u := range users {
		if u == nil {
			continue
		}
		u.ID = id
		s.users[id] = &userEntry{user: u}
		if u.ReferralCode != "" {
			s.refIndex[u.ReferralCode] = id
		}
	}
	for code, p := range promos {
		if p != nil {
			p.Code = code
			s.promos[code] = p
		}
	}
	for id, t := range templates {
		if t != nil {
			t.ID = id
			s.templates[id] = t
		}
	}
	for id, a := range achievements {
		a.ID = id
		s.achievements[id] = a
	}
	if stats.Counters != nil {
		s.stats = stats
	}
	s.bootstrapLocked()

	s.log.Info().
		Int("users", len(s.users)).
		Int("promo_codes", len(s.promos)).
		Int("templates", len(s.templates)).
		Msg("store loaded")
	return nil
}

func (s *Store) bootstrapLocked() {
	now := s.opts.Now()
	if s.opts.AdminID != 0 {
		e, ok := s.users[s.opts.AdminID]
		if !ok {
			u := model.NewUser(s.opts.AdminID, "admin", s.opts.AdminStars, now)
			u.State = model.StateMainMenu
			e = &userEntry{user: u}
			s.users[u.ID] = e
			s.refIndex[u.ReferralCode] = u.ID
		}
		u := e.user
		if !u.IsPremium || u.PremiumExpiry != nil || !u.HasSubscribed || u.Stars < s.opts.AdminStars {
			u.GrantPremium(0, now)
			u.HasSubscribed = true
			if u.Stars < s.opts.AdminStars {
				u.Stars = s.opts.AdminStars
			}
			e.rev++
			e.dirty = true
		}
	}
	if len(s.achievements) == 0 {
		for _, a := range model.DefaultAchievements() {
			s.achievements[a.ID] = a
		}
		s.touchDoc(repository.DocAchievements)
	}
	if len(s.templates) == 0 {
		for _, t := range model.DefaultTemplates(now) {
			s.templates[t.ID] = t
		}
		s.touchDoc(repository.DocTemplates)
	}
}

type docSnapshot struct {
	name string
	rev  uint64
	data []byte
}

// SaveAll writes every dirty document whole. Flags are cleared only for
// records not modified since the snapshot; a failed document stays dirty.
func (s *Store) SaveAll(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	started := time.Now()

	docs, userRevs, err := s.snapshot()
	if err != nil {
		metrics.ObserveFlush(s.opts.Backend, "failed", started)
		return err
	}
	if len(docs) == 0 {
		metrics.ObserveFlush(s.opts.Backend, "clean", started)
		return nil
	}

	var errs []error
	saved := map[string]uint64{}
	for _, d := range docs {
		if err := s.backend.Save(ctx, d.name, d.data); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", d.name, err))
			continue
		}
		saved[d.name] = d.rev
	}

	s.mu.Lock()
	for name, rev := range saved {
		s.docSaved[name] = rev
	}
	if _, ok := saved[repository.DocUsers]; ok {
		for id, rev := range userRevs {
			if e, ok := s.users[id]; ok && e.rev == rev {
				e.dirty = false
			}
		}
	}
	dirty := s.dirtyLocked()
	s.mu.Unlock()
	metrics.SetDirtyRecords(dirty)

	if err := errors.Join(errs...); err != nil {
		metrics.ObserveFlush(s.opts.Backend, "failed", started)
		s.log.Error().Err(err).Int("dirty", dirty).Msg("flush failed, will retry")
		return err
	}
	metrics.ObserveFlush(s.opts.Backend, "ok", started)
	s.log.Debug().Int("documents", len(docs)).Dur("took", time.Since(started)).Msg("store flushed")
	return nil
}

func (s *Store) snapshot() ([]docSnapshot, map[int64]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []docSnapshot
	var userRevs map[int64]uint64

	usersDirty := s.docRev[repository.DocUsers] != s.docSaved[repository.DocUsers]
	for _, e := range s.users {
		if e.dirty {
			usersDirty = true
			break
		}
	}
	if usersDirty {
		all := make(map[int64]*model.User, len(s.users))
		userRevs = make(map[int64]uint64, len(s.users))
		for id, e := range s.users {
			all[id] = e.user
			userRevs[id] = e.rev
		}
		raw, err := json.Marshal(all)
		if err != nil {
			return nil, nil, fmt.Errorf("encode users: %w", err)
		}
		docs = append(docs, docSnapshot{name: repository.DocUsers, rev: s.docRev[repository.DocUsers], data: raw})
	}

	others := []struct {
		name string
		v    any
	}{
		{repository.DocPromoCodes, s.promos},
		{repository.DocTemplates, s.templates},
		{repository.DocAchievements, s.achievements},
		{repository.DocStats, s.stats},
	}
	for _, o := range others {
		if s.docRev[o.name] == s.docSaved[o.name] {
			continue
		}
		raw, err := json.Marshal(o.v)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s: %w", o.name, err)
		}
		docs = append(docs, docSnapshot{name: o.name, rev: s.docRev[o.name], data: raw})
	}
	return docs, userRevs, nil
}

// DirtyCount is the number of user records awaiting a flush.
func (s *Store) DirtyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirtyLocked()
}

func (s *Store) dirtyLocked() int {
	n := 0
	for _, e := range s.users {
		if e.dirty {
			n++
		}
	}
	return n
}

// -----------------------------
// Users
// -----------------------------

func (s *Store) FindByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.user.Clone(), nil
}

func (s *Store) FindByReferralCode(_ context.Context, code string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.refIndex[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.user.Clone(), nil
}

func (s *Store) GetOrCreate(_ context.Context, id int64, newUser func() *model.User) (*model.User, bool, error) {
	s.mu.RLock()
	e, ok := s.users[id]
	if ok {
		u := e.user.Clone()
		s.mu.RUnlock()
		return u, false, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.users[id]; ok {
		return e.user.Clone(), false, nil
	}
	u := newUser()
	if u == nil || u.ID != id {
		return nil, false, domain.ErrInvalidArgument
	}
	if owner, taken := s.refIndex[u.ReferralCode]; taken && owner != id {
		u.ReferralCode = fmt.Sprintf("%s%d", u.ReferralCode, len(s.refIndex))
	}
	s.users[id] = &userEntry{user: u, rev: 1, dirty: true}
	s.refIndex[u.ReferralCode] = id
	return u.Clone(), true, nil
}

func (s *Store) Update(_ context.Context, id int64, fn repository.UserMutator) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	tentative := e.user.Clone()
	if err := fn(tentative); err != nil {
		return nil, err
	}
	tentative.ID = id
	s.swapLocked(e, tentative)
	return tentative.Clone(), nil
}

func (s *Store) UpdatePair(_ context.Context, a, b int64, fn func(a, b *model.User) error) error {
	if a == b {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ea, ok := s.users[a]
	if !ok {
		return domain.ErrNotFound
	}
	eb, ok := s.users[b]
	if !ok {
		return domain.ErrNotFound
	}
	ta, tb := ea.user.Clone(), eb.user.Clone()
	if err := fn(ta, tb); err != nil {
		return err
	}
	ta.ID, tb.ID = a, b
	s.swapLocked(ea, ta)
	s.swapLocked(eb, tb)
	return nil
}

func (s *Store) swapLocked(e *userEntry, u *model.User) {
	if e.user.ReferralCode != u.ReferralCode {
		delete(s.refIndex, e.user.ReferralCode)
		s.refIndex[u.ReferralCode] = u.ID
	}
	e.user = u
	e.rev++
	e.dirty = true
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.deleteLocked(id) {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) deleteLocked(id int64) bool {
	e, ok := s.users[id]
	if !ok {
		return false
	}
	delete(s.refIndex, e.user.ReferralCode)
	delete(s.users, id)
	s.touchDoc(repository.DocUsers)
	return true
}

func (s *Store) DeleteIdle(_ context.Context, cutoff time.Time, keepID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.users {
		if id == keepID || !e.user.LastInteraction.Before(cutoff) {
			continue
		}
		if s.deleteLocked(id) {
			n++
		}
	}
	return n, nil
}

// List returns clones ordered by id.
func (s *Store) List(_ context.Context) ([]*model.User, error) {
	s.mu.RLock()
	out := make([]*model.User, 0, len(s.users))
	for _, e := range s.users {
		out = append(out, e.user.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// -----------------------------
// Achievements
// -----------------------------

func (s *Store) ListAchievements(_ context.Context) ([]model.Achievement, error) {
	s.mu.RLock()
	out := make([]model.Achievement, 0, len(s.achievements))
	for _, a := range s.achievements {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveAchievement(_ context.Context, a model.Achievement) error {
	if a.ID == "" || a.Threshold <= 0 {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.achievements[a.ID] = a
	s.touchDoc(repository.DocAchievements)
	return nil
}
