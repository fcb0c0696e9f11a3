package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/store"
)

type fakeRelayStats struct {
	depth   int
	sent    int64
	queued  int64
	dropped int64
}

func (f *fakeRelayStats) Depth() int { return f.depth }

func (f *fakeRelayStats) Stats() (int64, int64, int64) { return f.sent, f.queued, f.dropped }

func newCollectorStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func saveLead(t *testing.T, st *store.SQLiteStore, id string, spam bool) {
	t.Helper()
	_, err := st.SaveLead(context.Background(), model.Lead{
		ID:    id,
		Stage: model.StageContact,
		Email: id + "@example.com",
		TS:    time.Now().UnixMilli(),
		Spam:  spam,
	})
	require.NoError(t, err)
}

func TestCollector_Collect(t *testing.T) {
	st := newCollectorStore(t)
	saveLead(t, st, "lead-1", false)
	saveLead(t, st, "lead-2", false)
	saveLead(t, st, "lead-3", true)

	relay := &fakeRelayStats{depth: 2, sent: 5, queued: 3, dropped: 1}
	c := NewCollector(st, relay)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.LeadsTotal)
	assert.Equal(t, 1, snap.LeadsSpam)
	assert.InDelta(t, 1.0/3.0, snap.SpamRate, 0.001)
	assert.Equal(t, int64(5), snap.RelaySent)
	assert.Equal(t, int64(3), snap.RelayQueued)
	assert.Equal(t, int64(1), snap.RelayDropped)
	assert.Equal(t, 2, snap.QueueDepth)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.WithinDuration(t, time.Now().UTC(), snap.CollectedAt, 5*time.Second)
}

func TestCollector_NilRelay(t *testing.T) {
	st := newCollectorStore(t)
	saveLead(t, st, "lead-1", false)

	snap, err := NewCollector(st, nil).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.LeadsTotal)
	assert.Zero(t, snap.RelaySent)
	assert.Zero(t, snap.QueueDepth)
}

func TestCollector_EmptyStore(t *testing.T) {
	st := newCollectorStore(t)

	snap, err := NewCollector(st, nil).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Zero(t, snap.LeadsTotal)
	assert.Zero(t, snap.SpamRate)
}
