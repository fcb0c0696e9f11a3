package quote

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/solterra-energy/quote-cli/internal/model"
)

// PlacementState tracks how far a visitor has gotten placing markers.
type PlacementState string

const (
	NoMeter             PlacementState = "no_meter"
	MeterPlaced         PlacementState = "meter_placed"
	MeterAndArrayPlaced PlacementState = "meter_and_array_placed"
)

// Config holds the pricing tunables the engine derives from.
type Config struct {
	CostPerFootUSD int
	Sizing         Sizing
}

// SessionStore persists the quote session. The meter position is written
// under its own key in addition to the session blob, so it survives a
// corrupted or cleared session record.
type SessionStore interface {
	PutSession(ctx context.Context, s *model.QuoteSession) error
	GetSession(ctx context.Context, leadID string) (*model.QuoteSession, error)
	PutMeterPosition(ctx context.Context, leadID string, pos *model.GeoPosition) error
	GetMeterPosition(ctx context.Context, leadID string) (*model.GeoPosition, error)
}

// Engine tracks the two movable positions of one quote session and derives
// trench measurement and panel count. Persistence and notification failures
// never propagate to callers; derived values just reset or hold.
type Engine struct {
	cfg   Config
	store SessionStore // nil means memory-only

	mu          sync.Mutex
	sess        *model.QuoteSession
	subscribers []func(model.TrenchMeasurement)
}

// NewEngine creates an engine for the given session. A nil store degrades to
// memory-only operation.
func NewEngine(cfg Config, sess *model.QuoteSession, store SessionStore) *Engine {
	if sess == nil {
		sess = &model.QuoteSession{}
	}
	return &Engine{cfg: cfg, sess: sess, store: store}
}

// Restore rebuilds an engine from persisted state. The dedicated meter
// position key is read preferentially over the session blob.
func Restore(ctx context.Context, cfg Config, store SessionStore, leadID string) *Engine {
	sess := &model.QuoteSession{LeadID: leadID}
	if store != nil {
		if persisted, err := store.GetSession(ctx, leadID); err != nil {
			zap.L().Warn("quote: restore session", zap.String("lead_id", leadID), zap.Error(err))
		} else if persisted != nil {
			sess = persisted
		}
		if pos, err := store.GetMeterPosition(ctx, leadID); err != nil {
			zap.L().Warn("quote: restore meter position", zap.String("lead_id", leadID), zap.Error(err))
		} else if pos != nil {
			sess.MeterPosition = pos
		}
	}
	return NewEngine(cfg, sess, store)
}

// Subscribe registers a callback invoked with the new trench measurement
// whenever either position changes. Used by map adapters to keep the
// connector line in sync.
func (e *Engine) Subscribe(fn func(model.TrenchMeasurement)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// SetMeterPosition places or clears the utility meter marker. Clearing
// resets the trench measurement to zero.
func (e *Engine) SetMeterPosition(ctx context.Context, pos *model.GeoPosition) {
	e.mu.Lock()
	e.sess.MeterPosition = pos
	if e.store != nil {
		if err := e.store.PutMeterPosition(ctx, e.sess.LeadID, pos); err != nil {
			zap.L().Warn("quote: persist meter position", zap.Error(err))
		}
	}
	e.persistSessionLocked(ctx)
	t := e.trenchLocked()
	subs := append([]func(model.TrenchMeasurement){}, e.subscribers...)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(t)
	}
}

// SetArrayPosition places or clears the panel array marker, mirroring
// SetMeterPosition.
func (e *Engine) SetArrayPosition(ctx context.Context, pos *model.GeoPosition) {
	e.mu.Lock()
	e.sess.ArrayPosition = pos
	e.persistSessionLocked(ctx)
	t := e.trenchLocked()
	subs := append([]func(model.TrenchMeasurement){}, e.subscribers...)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(t)
	}
}

// SetUsage records the visitor's bill inputs and recomputes the panel count.
func (e *Engine) SetUsage(ctx context.Context, avgBillUSD, offsetPct float64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.AvgBillUSD = clampNonNegative(avgBillUSD)
	e.sess.OffsetPct = clampNonNegative(offsetPct)
	e.sess.PanelCount = e.cfg.Sizing.PanelCount(e.sess.AvgBillUSD, e.sess.OffsetPct)
	e.persistSessionLocked(ctx)
	return e.sess.PanelCount
}

// Trench returns the current trench measurement. Zero when either position
// is unset or the sized system has no panels.
func (e *Engine) Trench() model.TrenchMeasurement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trenchLocked()
}

// State reports the placement state machine position.
func (e *Engine) State() PlacementState {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.sess.MeterPosition == nil:
		return NoMeter
	case e.sess.ArrayPosition == nil:
		return MeterPlaced
	default:
		return MeterAndArrayPlaced
	}
}

// Session returns a copy of the current session state.
func (e *Engine) Session() model.QuoteSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.sess
}

// Summary builds the priced quote attached to a lead at capture time.
func (e *Engine) Summary() model.QuoteSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.QuoteSummary{
		Panels:     e.sess.PanelCount,
		SystemKW:   e.cfg.Sizing.SystemKW(e.sess.PanelCount),
		Trench:     e.trenchLocked(),
		AvgBillUSD: e.sess.AvgBillUSD,
		OffsetPct:  e.sess.OffsetPct,
	}
}

func (e *Engine) trenchLocked() model.TrenchMeasurement {
	// Usage inputs that size to zero panels suppress trench pricing: there
	// is no system to trench to.
	if e.sess.AvgBillUSD > 0 && e.sess.PanelCount == 0 {
		return model.TrenchMeasurement{}
	}
	return Trench(e.sess.MeterPosition, e.sess.ArrayPosition, e.cfg.CostPerFootUSD)
}

func (e *Engine) persistSessionLocked(ctx context.Context) {
	if e.store == nil {
		return
	}
	if err := e.store.PutSession(ctx, e.sess); err != nil {
		zap.L().Warn("quote: persist session", zap.String("lead_id", e.sess.LeadID), zap.Error(err))
	}
}
