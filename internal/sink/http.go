package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/resilience"
)

// HTTPSink posts leads to a remote intake endpoint. Responses are mapped
// onto the retry taxonomy: 400 is permanent, 429 and 5xx (and transport
// failures) are transient. A circuit breaker keeps a dead backend from
// absorbing every flush.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	breaker  *resilience.Breaker
}

// HTTPOption configures an HTTPSink.
type HTTPOption func(*HTTPSink)

// WithHTTPClient overrides the default 10s-timeout client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSink) {
		s.client = c
	}
}

// NewHTTP creates a sink posting to the given /api/leads endpoint.
func NewHTTP(endpoint string, opts ...HTTPOption) *HTTPSink {
	s := &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			ShouldTrip: resilience.IsTransient,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSink) Name() string { return "http" }

// intakeResponse is the body returned by the intake endpoint.
type intakeResponse struct {
	OK     bool   `json:"ok"`
	Dedup  bool   `json:"dedup,omitempty"`
	RowRef string `json:"rowRef,omitempty"`
}

func (s *HTTPSink) Send(ctx context.Context, lead model.Lead) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.post(ctx, lead)
	})
}

func (s *HTTPSink) post(ctx context.Context, lead model.Lead) error {
	body, err := json.Marshal(lead)
	if err != nil {
		return resilience.NewPermanentError(eris.Wrap(err, "sink: marshal lead"), 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return resilience.NewPermanentError(eris.Wrap(err, "sink: build request"), 0)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "sink: post lead"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resilience.ClassifyStatus(resp.StatusCode,
			eris.Errorf("sink: intake returned status %d", resp.StatusCode))
	}

	var out intakeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		// A 2xx with an unreadable body still counts as delivered.
		zap.L().Debug("sink: decode intake response", zap.Error(err))
		return nil
	}
	if out.Dedup {
		zap.L().Debug("sink: lead already known to intake", zap.String("lead_id", lead.ID))
	}
	return nil
}
