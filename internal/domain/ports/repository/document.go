package repository

import "context"

// Document names persisted by the store.
const (
	DocUsers        = "users"
	DocPromoCodes   = "promo_codes"
	DocTemplates    = "templates"
	DocAchievements = "achievements"
	DocStats        = "stats"
)

// AllDocuments lists every document in load order.
func AllDocuments() []string {
	return []string{DocUsers, DocPromoCodes, DocTemplates, DocAchievements, DocStats}
}

// DocumentStore persists whole JSON documents by name. Load returns
// domain.ErrNotFound for a document that was never saved. Save must either
// replace the document completely or leave the previous version intact.
type DocumentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Close() error
}

// Persister mirrors every document in memory and flushes dirty state.
type Persister interface {
	LoadAll(ctx context.Context) error
	SaveAll(ctx context.Context) error
	DirtyCount() int
}
