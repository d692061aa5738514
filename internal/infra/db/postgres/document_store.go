package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/ports/repository"
)

var _ repository.DocumentStore = (*DocumentStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS bot_documents (
  name       TEXT PRIMARY KEY,
  body       BYTEA NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Tables created with a JSONB body cannot hold sealed documents.
const migrateBody = `
DO $$
BEGIN
  IF EXISTS (SELECT 1 FROM information_schema.columns
             WHERE table_name = 'bot_documents' AND column_name = 'body' AND data_type = 'jsonb') THEN
    ALTER TABLE bot_documents ALTER COLUMN body TYPE BYTEA USING convert_to(body::text, 'UTF8');
  END IF;
END $$;`

// DocumentStore keeps each document as one row holding the exact bytes it
// was given, so sealed documents round-trip as well as plain JSON.
type DocumentStore struct {
	pool *pgxpool.Pool
	tm   *TxManager
}

func NewDocumentStore(ctx context.Context, pool *pgxpool.Pool) (*DocumentStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if _, err := pool.Exec(ctx, migrateBody); err != nil {
		return nil, fmt.Errorf("migrate body column: %w", err)
	}
	return &DocumentStore{pool: pool, tm: NewTxManager(pool)}, nil
}

func (s *DocumentStore) Load(ctx context.Context, name string) ([]byte, error) {
	const q = `SELECT body FROM bot_documents WHERE name=$1;`
	var body []byte
	if err := s.pool.QueryRow(ctx, q, name).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return body, nil
}

func (s *DocumentStore) Save(ctx context.Context, name string, data []byte) error {
	const q = `
INSERT INTO bot_documents (name, body, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET body=EXCLUDED.body, updated_at=EXCLUDED.updated_at;`
	err := s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var tag pgconn.CommandTag
		tag, err := tx.Exec(ctx, q, name, data)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("upsert %s: %d rows affected", name, tag.RowsAffected())
		}
		return nil
	})
	ReportPoolStats(s.pool)
	return err
}

func (s *DocumentStore) Close() error {
	s.pool.Close()
	return nil
}
