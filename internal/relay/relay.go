// Package relay buffers lead submissions that could not be delivered and
// retries them with bounded exponential backoff. Delivery is best-effort,
// not exactly-once: the backend deduplicates by lead ID.
package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/resilience"
)

// Sender delivers one lead to the backend. Implementations return a
// resilience.PermanentError for failures that retrying cannot fix.
type Sender interface {
	Send(ctx context.Context, lead model.Lead) error
}

// Storage persists the queue as a whole list; the relay read-modify-writes
// it under its own lock. Storage failures degrade the relay to memory-only
// operation, they never surface to submitters.
type Storage interface {
	LoadQueue(ctx context.Context) ([]model.QueuedLead, error)
	SaveQueue(ctx context.Context, entries []model.QueuedLead) error
}

// Config holds the queue ceilings and flush pacing.
type Config struct {
	MaxRetries       int           // attempts per entry before it is dropped (default 3)
	MaxQueueSize     int           // entries kept; oldest dropped beyond this (default 10)
	MaxAge           time.Duration // entries older than this are purged (default 24h)
	MinFlushInterval time.Duration // floor between flushes (default 2s)
	InitialBackoff   time.Duration // backoff seed for rescheduling (default 3s)
	MaxBackoff       time.Duration // backoff cap (default 30s)
	StartDelay       time.Duration // delay before the first scheduled flush (default 3s)
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.MinFlushInterval <= 0 {
		c.MinFlushInterval = 2 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 3 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.StartDelay <= 0 {
		c.StartDelay = 3 * time.Second
	}
	return c
}

// Relay is the durable lead queue service. Construct with New; all
// dependencies are injected so tests can substitute fakes.
type Relay struct {
	cfg     Config
	sender  Sender
	storage Storage // nil means memory-only
	policy  resilience.Policy
	now     func() time.Time

	mu        sync.Mutex
	queue     []model.QueuedLead
	hydrated  bool
	lastFlush time.Time

	flushing atomic.Bool
	wake     chan struct{}
	started  atomic.Bool

	sent    atomic.Int64
	queued  atomic.Int64
	dropped atomic.Int64
}

// New creates a relay. Storage may be nil for memory-only operation.
func New(cfg Config, sender Sender, storage Storage) *Relay {
	cfg = cfg.withDefaults()
	return &Relay{
		cfg:     cfg,
		sender:  sender,
		storage: storage,
		policy:  resilience.Exponential(cfg.InitialBackoff, cfg.MaxBackoff),
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
}

// Submit attempts an immediate send and queues the lead on retryable
// failure. It never returns an error: submission is fire-and-forget from
// the caller's perspective, failures are logged only.
func (r *Relay) Submit(ctx context.Context, lead model.Lead) {
	err := r.sender.Send(ctx, lead)
	if err == nil {
		r.sent.Add(1)
		return
	}
	if resilience.IsPermanent(err) {
		r.dropped.Add(1)
		zap.L().Warn("relay: lead rejected permanently", zap.String("lead_id", lead.ID), zap.Error(err))
		return
	}

	zap.L().Info("relay: queueing lead after failed send", zap.String("lead_id", lead.ID), zap.Error(err))
	r.mu.Lock()
	r.hydrateLocked(ctx)
	r.queue = append(r.queue, model.QueuedLead{Lead: lead})
	r.maintainLocked()
	r.persistLocked(ctx)
	r.mu.Unlock()
	r.queued.Add(1)

	// Nudge the flush loop; without this a queue that went empty leaves the
	// loop parked until the next Wake.
	r.Wake()
}

// Flush processes at most one queued entry. At most one flush runs at a
// time per process; overlapping and too-frequent calls are no-ops. Returns
// the delay before the next flush should run, zero when the queue is empty.
func (r *Relay) Flush(ctx context.Context) time.Duration {
	if !r.flushing.CompareAndSwap(false, true) {
		return 0
	}
	defer r.flushing.Store(false)

	r.mu.Lock()
	if r.now().Sub(r.lastFlush) < r.cfg.MinFlushInterval {
		r.mu.Unlock()
		return r.cfg.MinFlushInterval
	}
	r.lastFlush = r.now()

	r.hydrateLocked(ctx)
	r.maintainLocked()
	if len(r.queue) == 0 {
		r.persistLocked(ctx)
		r.mu.Unlock()
		return 0
	}

	head := r.queue[0]
	r.queue = r.queue[1:]
	r.persistLocked(ctx)
	r.mu.Unlock()

	err := r.sender.Send(ctx, head.Lead)
	switch {
	case err == nil:
		r.sent.Add(1)
	case resilience.IsPermanent(err):
		// Retrying a validation rejection cannot help.
		r.dropped.Add(1)
		zap.L().Warn("relay: dropping rejected lead", zap.String("lead_id", head.ID), zap.Error(err))
	default:
		head.Retries++
		if head.Retries >= r.cfg.MaxRetries {
			r.dropped.Add(1)
			zap.L().Warn("relay: dropping lead after max retries",
				zap.String("lead_id", head.ID),
				zap.Int("retries", head.Retries),
				zap.Error(err),
			)
		} else {
			// Re-append at the tail so other entries get a turn.
			r.mu.Lock()
			r.queue = append(r.queue, head)
			r.persistLocked(ctx)
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return 0
	}
	return r.policy(r.queue[0].Retries)
}

// Wake requests an opportunistic flush, the equivalent of a connectivity or
// visibility event. Safe to call from any goroutine; coalesces.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start runs the flush loop until ctx is done: one maintenance pass, an
// initial flush after StartDelay, then flushes on Wake signals and on the
// backoff schedule returned by Flush. Calling Start more than once is a
// no-op.
func (r *Relay) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	r.hydrateLocked(ctx)
	r.maintainLocked()
	r.persistLocked(ctx)
	r.mu.Unlock()

	timer := time.NewTimer(r.cfg.StartDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-timer.C:
		}

		next := r.Flush(ctx)
		if next > 0 {
			timer.Reset(next)
		}
	}
}

// Depth returns the current queue length.
func (r *Relay) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Stats reports delivery counters for status surfaces.
func (r *Relay) Stats() (sent, queued, dropped int64) {
	return r.sent.Load(), r.queued.Load(), r.dropped.Load()
}

// hydrateLocked loads the persisted queue once. A load failure leaves the
// relay memory-only for its lifetime.
func (r *Relay) hydrateLocked(ctx context.Context) {
	if r.hydrated || r.storage == nil {
		return
	}
	r.hydrated = true
	entries, err := r.storage.LoadQueue(ctx)
	if err != nil {
		zap.L().Warn("relay: load queue, continuing in memory", zap.Error(err))
		return
	}
	r.queue = append(entries, r.queue...)
}

// maintainLocked purges stale and exhausted entries, then truncates the
// queue to its size cap by dropping the oldest excess.
func (r *Relay) maintainLocked() {
	cutoff := r.now().Add(-r.cfg.MaxAge).UnixMilli()
	kept := r.queue[:0]
	for _, e := range r.queue {
		if e.TS < cutoff {
			r.dropped.Add(1)
			zap.L().Warn("relay: purging expired lead", zap.String("lead_id", e.ID))
			continue
		}
		if e.Retries >= r.cfg.MaxRetries {
			r.dropped.Add(1)
			zap.L().Warn("relay: purging exhausted lead", zap.String("lead_id", e.ID))
			continue
		}
		kept = append(kept, e)
	}
	r.queue = kept

	if excess := len(r.queue) - r.cfg.MaxQueueSize; excess > 0 {
		for _, e := range r.queue[:excess] {
			r.dropped.Add(1)
			zap.L().Warn("relay: dropping oldest lead, queue full", zap.String("lead_id", e.ID))
		}
		r.queue = append(r.queue[:0], r.queue[excess:]...)
	}
}

func (r *Relay) persistLocked(ctx context.Context) {
	if r.storage == nil {
		return
	}
	entries := append([]model.QueuedLead{}, r.queue...)
	if err := r.storage.SaveQueue(ctx, entries); err != nil {
		zap.L().Warn("relay: persist queue", zap.Error(err))
	}
}
