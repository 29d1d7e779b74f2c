package kv

import (
	"context"
	"time"

	"github.com/jwalitptl/cds-engine/internal/repository"
	"github.com/jwalitptl/cds-engine/pkg/metrics"
)

type instrumentedStore struct {
	next    repository.KVStore
	metrics *metrics.Metrics
}

// Instrument records latency and outcome of every store call.
func Instrument(next repository.KVStore, m *metrics.Metrics) repository.KVStore {
	if m == nil {
		return next
	}
	return &instrumentedStore{next: next, metrics: m}
}

func (s *instrumentedStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, found, err := s.next.Get(ctx, key)
	s.metrics.ObserveStore("get", time.Since(start).Seconds(), err)
	return v, found, err
}

func (s *instrumentedStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.next.Set(ctx, key, value)
	s.metrics.ObserveStore("set", time.Since(start).Seconds(), err)
	return err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}
