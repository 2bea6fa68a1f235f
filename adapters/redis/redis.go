// Package redis stores the node directory in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	rdb "github.com/redis/go-redis/v9"

	"github.com/NamazuStudios/elements-sub015/ports/directory"
)

type Options struct {
	Addr     string
	DB       int
	Password string
	// Prefix is prepended to every key, e.g. "clstr:".
	Prefix string
}

// Store is a [directory.Store] backed by Redis strings. Per-entry TTLs map
// to key expiry.
type Store struct {
	c      *rdb.Client
	prefix string
}

func New(opts Options) *Store {
	return NewFromClient(rdb.NewClient(&rdb.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Password: opts.Password,
	}), opts.Prefix)
}

func NewFromClient(c *rdb.Client, prefix string) *Store {
	return &Store{c: c, prefix: prefix}
}

func (s *Store) Ping(ctx context.Context) error { return s.c.Ping(ctx).Err() }
func (s *Store) Close() error                   { return s.c.Close() }

func (s *Store) Put(ctx context.Context, key string, data []byte, opts directory.PutOptions) error {
	if err := s.c.Set(ctx, s.prefix+key, data, opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.c.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return nil, directory.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return b, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.c.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis: delete %s: %w", key, err)
	}
	return nil
}

var _ directory.Store = (*Store)(nil)
