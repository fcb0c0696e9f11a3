package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/resilience"
)

func intakeServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var lead model.Lead
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&lead))
		assert.NotEmpty(t, lead.ID)

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSinkLead() model.Lead {
	return model.Lead{ID: "lead-1", Stage: model.StageContact, Email: "ana@example.com", TS: 1700000000000}
}

func TestHTTPSink_Success(t *testing.T) {
	srv := intakeServer(t, http.StatusOK, `{"ok":true}`)
	s := NewHTTP(srv.URL)

	err := s.Send(context.Background(), testSinkLead())
	assert.NoError(t, err)
}

func TestHTTPSink_DedupIsSuccess(t *testing.T) {
	srv := intakeServer(t, http.StatusOK, `{"ok":true,"dedup":true}`)
	s := NewHTTP(srv.URL)

	err := s.Send(context.Background(), testSinkLead())
	assert.NoError(t, err)
}

func TestHTTPSink_UnreadableBodyStillSuccess(t *testing.T) {
	srv := intakeServer(t, http.StatusOK, `not json at all`)
	s := NewHTTP(srv.URL)

	err := s.Send(context.Background(), testSinkLead())
	assert.NoError(t, err)
}

func TestHTTPSink_StatusTaxonomy(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
		wantPermanent bool
	}{
		{http.StatusNoContent, false, false},
		{http.StatusBadRequest, false, true},
		{http.StatusTooManyRequests, true, false},
		{http.StatusInternalServerError, true, false},
		{http.StatusServiceUnavailable, true, false},
	}
	for _, tt := range tests {
		srv := intakeServer(t, tt.status, "")
		s := NewHTTP(srv.URL)

		err := s.Send(context.Background(), testSinkLead())
		if !tt.wantTransient && !tt.wantPermanent {
			assert.NoError(t, err, "status %d", tt.status)
			continue
		}
		require.Error(t, err, "status %d", tt.status)
		assert.Equal(t, tt.wantTransient, resilience.IsTransient(err), "status %d", tt.status)
		assert.Equal(t, tt.wantPermanent, resilience.IsPermanent(err), "status %d", tt.status)
	}
}

func TestHTTPSink_TransportFailureIsTransient(t *testing.T) {
	srv := intakeServer(t, http.StatusOK, "")
	url := srv.URL
	srv.Close()

	s := NewHTTP(url)
	err := s.Send(context.Background(), testSinkLead())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestHTTPSink_BreakerOpensOnRepeatedFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	s := NewHTTP(srv.URL)
	for i := 0; i < 7; i++ {
		_ = s.Send(context.Background(), testSinkLead())
	}

	// The breaker opens at its threshold; later sends never reach the wire.
	assert.Equal(t, 5, calls)
}
