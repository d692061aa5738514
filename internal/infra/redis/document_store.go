package redis

import (
	"context"
	"errors"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.DocumentStore = (*DocumentStore)(nil)

// DocumentStore keeps each document under prefix+name. The previous body is
// copied to prefix+name+":prev" in the same MULTI/EXEC block.
type DocumentStore struct {
	cli    *redis.Client
	prefix string
}

func NewDocumentStore(c *Client, prefix string) *DocumentStore {
	if prefix == "" {
		prefix = "bot:doc:"
	}
	return &DocumentStore{cli: c.cli, prefix: prefix}
}

func (s *DocumentStore) Load(ctx context.Context, name string) ([]byte, error) {
	raw, err := s.cli.Get(ctx, s.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	return raw, err
}

func (s *DocumentStore) Save(ctx context.Context, name string, data []byte) error {
	key := s.prefix + name
	prev, err := s.cli.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	_, err = s.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != nil {
			p.Set(ctx, key+":prev", prev, 0)
		}
		p.Set(ctx, key, data, 0)
		return nil
	})
	return err
}

func (s *DocumentStore) Close() error { return nil }
