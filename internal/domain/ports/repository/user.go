package repository

import (
	"context"
	"time"

	"telegram-ai-stars/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

// UserMutator changes a tentative copy of a record. Returning an error
// discards the copy and leaves the stored record unchanged.
type UserMutator func(u *model.User) error

type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByReferralCode(ctx context.Context, code string) (*model.User, error)
	// GetOrCreate returns the stored user, creating it with newUser on first
	// contact. The bool reports whether the record was created.
	GetOrCreate(ctx context.Context, id int64, newUser func() *model.User) (*model.User, bool, error)
	// Update applies fn atomically and marks the record dirty on success.
	Update(ctx context.Context, id int64, fn UserMutator) (*model.User, error)
	// UpdatePair applies fn to two records atomically.
	UpdatePair(ctx context.Context, a, b int64, fn func(a, b *model.User) error) error
	Delete(ctx context.Context, id int64) error
	// DeleteIdle removes users whose last interaction is before cutoff,
	// except keepID. It returns the number removed.
	DeleteIdle(ctx context.Context, cutoff time.Time, keepID int64) (int, error)
	List(ctx context.Context) ([]*model.User, error)
	Count(ctx context.Context) (int, error)
}
