package store

import (
	"context"
	"time"

	"github.com/solterra-energy/quote-cli/internal/model"
)

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Stage        model.LeadStage `json:"stage,omitempty"`
	IncludeSpam  bool            `json:"include_spam,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store is the persistence interface for leads, quote sessions, and the
// relay queue blob. SaveLead is idempotent on lead ID so replayed
// submissions deduplicate server-side.
type Store interface {
	// Leads
	SaveLead(ctx context.Context, lead model.Lead) (dedup bool, err error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	CountLeads(ctx context.Context, since time.Time) (model.LeadCounts, error)

	// Quote sessions. The meter position has its own key so it survives a
	// corrupted session blob.
	PutSession(ctx context.Context, s *model.QuoteSession) error
	GetSession(ctx context.Context, leadID string) (*model.QuoteSession, error)
	PutMeterPosition(ctx context.Context, leadID string, pos *model.GeoPosition) error
	GetMeterPosition(ctx context.Context, leadID string) (*model.GeoPosition, error)

	// Relay queue blob
	LoadQueue(ctx context.Context) ([]model.QueuedLead, error)
	SaveQueue(ctx context.Context, entries []model.QueuedLead) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
