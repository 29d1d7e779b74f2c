package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/cds-engine/internal/model"
)

type fakeRetainer struct {
	mu       sync.Mutex
	policies []model.RetentionPolicy
	err      error
}

func (f *fakeRetainer) ApplyRetentionPolicy(_ context.Context, p model.RetentionPolicy) (model.CleanupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policies = append(f.policies, p)
	return model.CleanupResult{HistoryRemoved: 1}, f.err
}

func (f *fakeRetainer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.policies)
}

func TestRetentionWorker_RunOnce(t *testing.T) {
	r := &fakeRetainer{}
	policy := model.RetentionPolicy{HistoryDays: 90, AuditDays: 365}
	w := NewRetentionWorker(r, policy, time.Hour, nil)

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.HistoryRemoved)
	assert.Equal(t, []model.RetentionPolicy{policy}, r.policies)
}

func TestRetentionWorker_StartRunsUntilCancelled(t *testing.T) {
	r := &fakeRetainer{err: errors.New("store down")}
	w := NewRetentionWorker(r, model.RetentionPolicy{HistoryDays: 1, AuditDays: 1}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.calls() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
