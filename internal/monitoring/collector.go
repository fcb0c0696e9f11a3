package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/solterra-energy/quote-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of lead flow health.
type MetricsSnapshot struct {
	// Lead totals within the lookback window.
	LeadsTotal int     `json:"leads_total"`
	LeadsSpam  int     `json:"leads_spam"`
	SpamRate   float64 `json:"spam_rate"`

	// Relay delivery counters (process lifetime).
	RelaySent    int64 `json:"relay_sent"`
	RelayQueued  int64 `json:"relay_queued"`
	RelayDropped int64 `json:"relay_dropped"`
	QueueDepth   int   `json:"queue_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RelayStats abstracts the relay counters the collector reads.
type RelayStats interface {
	Depth() int
	Stats() (sent, queued, dropped int64)
}

// Collector gathers metrics from the lead store and the relay.
type Collector struct {
	store store.Store
	relay RelayStats
}

// NewCollector creates a metrics collector. relay may be nil.
func NewCollector(st store.Store, relay RelayStats) *Collector {
	return &Collector{store: st, relay: relay}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	var since time.Time
	if lookbackHours > 0 {
		since = time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	}

	counts, err := c.store.CountLeads(ctx, since)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count leads")
	}
	snap.LeadsTotal = counts.Total
	snap.LeadsSpam = counts.Spam
	if counts.Total > 0 {
		snap.SpamRate = float64(counts.Spam) / float64(counts.Total)
	}

	if c.relay != nil {
		snap.RelaySent, snap.RelayQueued, snap.RelayDropped = c.relay.Stats()
		snap.QueueDepth = c.relay.Depth()
	}

	return snap, nil
}
