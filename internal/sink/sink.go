// Package sink delivers captured leads to their downstream homes: the
// remote intake API, a spreadsheet workbook, the Notion lead database, and
// Salesforce. Every sink satisfies the relay's Sender contract.
package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/resilience"
)

// Sink delivers one lead to a backend.
type Sink interface {
	Name() string
	Send(ctx context.Context, lead model.Lead) error
}

// Multi fans a lead out to every configured sink. All sinks are attempted;
// the returned error is the most retryable failure seen so the relay keeps
// retrying while any sink might still succeed (downstream dedup absorbs
// repeats on the sinks that already took the lead).
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out over the given sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Send(ctx context.Context, lead model.Lead) error {
	var transient, permanent error
	for _, s := range m.sinks {
		err := s.Send(ctx, lead)
		if err == nil {
			continue
		}
		zap.L().Warn("sink: delivery failed",
			zap.String("sink", s.Name()),
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
		if resilience.IsPermanent(err) {
			permanent = err
		} else {
			transient = err
		}
	}
	if transient != nil {
		return transient
	}
	return permanent
}
