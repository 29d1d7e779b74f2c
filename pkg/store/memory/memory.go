// Package memory is a process-local key-value store backed by go-cache.
package memory

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"
)

type Store struct {
	cache *cache.Cache
}

// New returns an empty store whose entries never expire.
func New() *Store {
	return &Store{cache: cache.New(cache.NoExpiration, 0)}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	str, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("key %s holds %T, not a string", key, v)
	}
	return str, true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.cache.Set(key, value, cache.NoExpiration)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }
