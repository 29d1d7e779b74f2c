package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/cds-engine/internal/model"
	"github.com/jwalitptl/cds-engine/internal/repository/kv"
	"github.com/jwalitptl/cds-engine/pkg/store/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *clock, *memory.Store) {
	t.Helper()
	store := memory.New()
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewService(kv.NewAuditRepository(store, "", nil), nil, WithClock(c.now)), c, store
}

func TestService_LogAndRead(t *testing.T) {
	ctx := context.Background()
	s, c, _ := newTestService(t)

	first := s.Log(ctx, model.AuditAlertTriggered, "p1", "h1", "", nil)
	c.advance(time.Minute)
	s.Log(ctx, model.AuditAlertTriggered, "p2", "h2", "", nil)
	c.advance(time.Minute)
	last := s.Log(ctx, model.AuditAlertAcknowledged, "p1", "h1", "dr-house", map[string]interface{}{"notes": "seen"})

	require.NotNil(t, first)
	assert.NotEmpty(t, first.ID)
	assert.NotNil(t, first.Details)

	all := s.GetAuditLog(ctx, "")
	require.Len(t, all, 3)
	assert.Equal(t, last.ID, all[0].ID)
	assert.Equal(t, first.ID, all[2].ID)

	p1 := s.GetAuditLog(ctx, "p1")
	require.Len(t, p1, 2)
	assert.Equal(t, model.AuditAlertAcknowledged, p1[0].Action)
	assert.Equal(t, "dr-house", p1[0].UserID)
	assert.Equal(t, "seen", p1[0].Details["notes"])

	assert.Empty(t, s.GetAuditLog(ctx, "nobody"))
}

func TestService_EqualTimestampsNewestWrittenFirst(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	a := s.Log(ctx, model.AuditAlertTriggered, "p1", "h1", "", nil)
	b := s.Log(ctx, model.AuditAlertAcknowledged, "p1", "h1", "", nil)

	got := s.GetAuditLog(ctx, "p1")
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}

func TestService_MalformedStoreReadsEmpty(t *testing.T) {
	ctx := context.Background()
	s, _, store := newTestService(t)
	require.NoError(t, store.Set(ctx, kv.DefaultAuditKey, "{not json"))

	assert.Empty(t, s.GetAuditLog(ctx, ""))

	s.Log(ctx, model.AuditAlertTriggered, "p1", "h1", "", nil)
	assert.Len(t, s.GetAuditLog(ctx, ""), 1)
}

func TestService_RemoveBefore(t *testing.T) {
	ctx := context.Background()
	s, c, _ := newTestService(t)

	s.Log(ctx, model.AuditAlertTriggered, "p1", "old", "", nil)
	c.advance(24 * time.Hour)
	cutoff := c.now()
	s.Log(ctx, model.AuditAlertTriggered, "p1", "boundary", "", nil)
	c.advance(time.Hour)
	s.Log(ctx, model.AuditAlertTriggered, "p1", "new", "", nil)

	removed, err := s.RemoveBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	left := s.GetAuditLog(ctx, "")
	require.Len(t, left, 2)
	assert.Equal(t, "new", left[0].AlertID)
	assert.Equal(t, "boundary", left[1].AlertID)

	removed, err = s.RemoveBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

type brokenStore struct{ getErr, setErr error }

func (b brokenStore) Get(context.Context, string) (string, bool, error) { return "", false, b.getErr }
func (b brokenStore) Set(context.Context, string, string) error         { return b.setErr }
func (b brokenStore) Ping(context.Context) error                        { return nil }

func TestService_PersistenceFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()

	s := NewService(kv.NewAuditRepository(brokenStore{setErr: errors.New("disk full")}, "", nil), nil)
	entry := s.Log(ctx, model.AuditAlertTriggered, "p1", "h1", "", nil)
	require.NotNil(t, entry)
	assert.Equal(t, model.AuditAlertTriggered, entry.Action)

	s = NewService(kv.NewAuditRepository(brokenStore{getErr: errors.New("timeout")}, "", nil), nil)
	assert.NotNil(t, s.Log(ctx, model.AuditAlertTriggered, "p1", "h1", "", nil))
	assert.Empty(t, s.GetAuditLog(ctx, ""))

	_, err := s.RemoveBefore(ctx, time.Now())
	assert.Error(t, err)
}
