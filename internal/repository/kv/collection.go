// Package kv stores each collection as one JSON array under a fixed key.
package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/cds-engine/internal/repository"
	"github.com/jwalitptl/cds-engine/pkg/logger"
)

const (
	DefaultHistoryKey = "cds_alert_history"
	DefaultAuditKey   = "cds_audit_log"
)

// Collection serializes []T to and from a single key.
//
// A missing key and malformed JSON both load as an empty collection. Malformed data is
// logged and will be overwritten by the next Save. Backend failures are returned so
// callers can avoid writing over data they never read.
type Collection[T any] struct {
	store repository.KVStore
	key   string
	log   *logger.Logger
}

func NewCollection[T any](store repository.KVStore, key string, log *logger.Logger) *Collection[T] {
	if log == nil {
		log = logger.Nop()
	}
	return &Collection[T]{store: store, key: key, log: log}
}

func (c *Collection[T]) Key() string { return c.key }

func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	raw, found, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.log.Error(err, "failed to read collection", "key", c.key)
		return []T{}, fmt.Errorf("read %s: %w", c.key, err)
	}
	if !found || raw == "" {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		c.log.Error(err, "malformed collection, treating as empty", "key", c.key)
		return []T{}, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if err := c.store.Set(ctx, c.key, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", c.key, err)
	}
	return nil
}
