package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/quote"
	"github.com/solterra-energy/quote-cli/internal/store"
	"github.com/solterra-energy/quote-cli/pkg/geocode"
)

// fakeStore records saved leads and reports dedup on repeated IDs.
type fakeStore struct {
	mu      sync.Mutex
	leads   map[string]model.Lead
	failing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: make(map[string]model.Lead)}
}

func (f *fakeStore) SaveLead(_ context.Context, lead model.Lead) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return false, eris.New("store down")
	}
	if _, ok := f.leads[lead.ID]; ok {
		return true, nil
	}
	f.leads[lead.ID] = lead
	return false, nil
}

func (f *fakeStore) GetLead(_ context.Context, id string) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok {
		return nil, eris.New("lead not found")
	}
	return &l, nil
}

func (f *fakeStore) ListLeads(context.Context, store.LeadFilter) ([]model.Lead, error) {
	return nil, nil
}

func (f *fakeStore) CountLeads(context.Context, time.Time) (model.LeadCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := model.LeadCounts{Total: len(f.leads)}
	for _, l := range f.leads {
		if l.Spam {
			counts.Spam++
		}
	}
	return counts, nil
}

func (f *fakeStore) PutSession(context.Context, *model.QuoteSession) error { return nil }
func (f *fakeStore) GetSession(context.Context, string) (*model.QuoteSession, error) {
	return nil, nil
}
func (f *fakeStore) PutMeterPosition(context.Context, string, *model.GeoPosition) error { return nil }
func (f *fakeStore) GetMeterPosition(context.Context, string) (*model.GeoPosition, error) {
	return nil, nil
}
func (f *fakeStore) LoadQueue(context.Context) ([]model.QueuedLead, error) { return nil, nil }
func (f *fakeStore) SaveQueue(context.Context, []model.QueuedLead) error   { return nil }
func (f *fakeStore) Migrate(context.Context) error                         { return nil }
func (f *fakeStore) Close() error                                          { return nil }

// fakeRelay records submitted leads.
type fakeRelay struct {
	mu        sync.Mutex
	submitted []model.Lead
}

func (f *fakeRelay) Submit(_ context.Context, lead model.Lead) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, lead)
}

func (f *fakeRelay) Wake() {}

func (f *fakeRelay) submittedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.submitted))
	for i, l := range f.submitted {
		ids[i] = l.ID
	}
	return ids
}

func testServer(t *testing.T) (*Server, *fakeStore, *fakeRelay) {
	t.Helper()
	st := newFakeStore()
	rl := &fakeRelay{}
	cfg := Config{
		MinCompletion:  3 * time.Second,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	quoteCfg := quote.Config{
		CostPerFootUSD: 45,
		Sizing:         quote.Sizing{PricePerKWh: 0.14, CapacityFactor: 0.18, PanelWatts: 400},
	}
	return New(cfg, st, rl, quoteCfg, nil, nil), st, rl
}

func postLead(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/leads", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func waitForSubmissions(t *testing.T, rl *fakeRelay, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if len(rl.submittedIDs()) >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected %d submissions, got %d", n, len(rl.submittedIDs()))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

const testLeadID = "a3bb189e-8bf9-3888-9912-ace4e6543002"

func validLeadBody() map[string]any {
	return map[string]any{
		"id":     testLeadID,
		"state":  "contact",
		"email":  "ana@example.com",
		"ts":     time.Now().UnixMilli(),
		"ttc_ms": 45000,
	}
}

func TestHandleLead_Accepts(t *testing.T) {
	srv, st, rl := testServer(t)
	router := srv.Router()

	rec := postLead(t, router, validLeadBody())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp leadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.False(t, resp.Dedup)

	st.mu.Lock()
	_, saved := st.leads[testLeadID]
	st.mu.Unlock()
	assert.True(t, saved)

	waitForSubmissions(t, rl, 1)
}

func TestHandleLead_Dedup(t *testing.T) {
	srv, _, rl := testServer(t)
	router := srv.Router()

	rec := postLead(t, router, validLeadBody())
	require.Equal(t, http.StatusOK, rec.Code)
	waitForSubmissions(t, rl, 1)

	rec = postLead(t, router, validLeadBody())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp leadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.True(t, resp.Dedup)

	// The replay is not relayed again.
	assert.Len(t, rl.submittedIDs(), 1)
}

func TestHandleLead_Validation(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router()

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing id", map[string]any{"state": "contact", "email": "a@b.c"}},
		{"non-uuid id", map[string]any{"id": "not-a-uuid", "state": "contact", "email": "a@b.c"}},
		{"unknown state", map[string]any{"id": testLeadID, "state": "wat"}},
		{"contact without email or phone", map[string]any{"id": testLeadID, "state": "contact"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postLead(t, router, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleLead_BadJSON(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/leads", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLead_SpamFlagged(t *testing.T) {
	tests := []struct {
		name string
		mut  func(map[string]any)
	}{
		{"honeypot filled", func(b map[string]any) { b["honeypot"] = "gotcha" }},
		{"completed too fast", func(b map[string]any) { b["ttc_ms"] = 500 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, st, rl := testServer(t)
			router := srv.Router()

			body := validLeadBody()
			tt.mut(body)
			rec := postLead(t, router, body)

			// The bot sees a plain success.
			require.Equal(t, http.StatusOK, rec.Code)
			var resp leadResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, resp.OK)

			// Stored flagged, never relayed.
			st.mu.Lock()
			lead := st.leads[testLeadID]
			st.mu.Unlock()
			assert.True(t, lead.Spam)
			time.Sleep(20 * time.Millisecond)
			assert.Empty(t, rl.submittedIDs())
		})
	}
}

func TestHandleLead_RateLimited(t *testing.T) {
	st := newFakeStore()
	rl := &fakeRelay{}
	srv := New(Config{RateLimitRPS: 0.001, RateLimitBurst: 1}, st, rl, quote.Config{}, nil, nil)
	router := srv.Router()

	body := validLeadBody()
	rec := postLead(t, router, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postLead(t, router, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleLead_RateLimitIsPerIP(t *testing.T) {
	st := newFakeStore()
	rl := &fakeRelay{}
	srv := New(Config{RateLimitRPS: 0.001, RateLimitBurst: 1}, st, rl, quote.Config{}, nil, nil)
	router := srv.Router()

	post := func(remoteAddr string) *httptest.ResponseRecorder {
		b, err := json.Marshal(validLeadBody())
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/leads", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, post("203.0.113.7:1111").Code)
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.7:2222").Code)

	// One exhausted client must not lock out another.
	assert.Equal(t, http.StatusOK, post("203.0.113.8:1111").Code)
}

func TestHandleLead_StoreFailure(t *testing.T) {
	srv, st, _ := testServer(t)
	st.failing = true
	router := srv.Router()

	rec := postLead(t, router, validLeadBody())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleQuote(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router()

	body := map[string]any{
		"meter":        map[string]float64{"lng": -96.9479, "lat": 32.9007},
		"array":        map[string]float64{"lng": -96.9470, "lat": 32.9007},
		"avg_bill_usd": 150,
		"offset_pct":   100,
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/quote", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp quoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 21, resp.Panels)
	assert.Equal(t, 8.4, resp.SystemKW)
	assert.Equal(t, 276, resp.Trench.DistanceFeet)
	assert.Equal(t, 12420, resp.Trench.CostUSD)
	assert.Equal(t, model.GridLayout{Rows: 5, Cols: 5}, resp.Layout)
}

func TestHandleQuote_ZeroPanelsSuppressesTrench(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router()

	body := map[string]any{
		"meter":        map[string]float64{"lng": -96.9479, "lat": 32.9007},
		"array":        map[string]float64{"lng": -96.9470, "lat": 32.9007},
		"avg_bill_usd": 150,
		"offset_pct":   0,
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/quote", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp quoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Panels)
	assert.Equal(t, model.TrenchMeasurement{}, resp.Trench)
}

// fakeGeocoder returns scripted features.
type fakeGeocoder struct {
	features []geocode.Feature
	err      error
}

func (f *fakeGeocoder) Search(context.Context, string) ([]geocode.Feature, error) {
	return f.features, f.err
}

func (f *fakeGeocoder) Reverse(context.Context, float64, float64) (*geocode.Feature, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.features) == 0 {
		return nil, nil
	}
	return &f.features[0], nil
}

func TestHandleGeocode(t *testing.T) {
	st := newFakeStore()
	gc := &fakeGeocoder{features: []geocode.Feature{
		{DisplayName: "123 Main St, Dallas, TX", Longitude: -96.9479, Latitude: 32.9007, Source: "census", Quality: "rooftop"},
	}}
	srv := New(Config{}, st, &fakeRelay{}, quote.Config{}, gc, nil)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/geocode?q=123+Main+St", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Features []geocode.Feature `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Features, 1)
	assert.Equal(t, "123 Main St, Dallas, TX", resp.Features[0].DisplayName)
}

func TestHandleGeocode_MissingQuery(t *testing.T) {
	srv := New(Config{}, newFakeStore(), &fakeRelay{}, quote.Config{}, &fakeGeocoder{}, nil)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/geocode", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGeocode_Unconfigured(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/geocode?q=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleReverse(t *testing.T) {
	gc := &fakeGeocoder{features: []geocode.Feature{
		{DisplayName: "123 Main St, Dallas, TX", Longitude: -96.9479, Latitude: 32.9007},
	}}
	srv := New(Config{}, newFakeStore(), &fakeRelay{}, quote.Config{}, gc, nil)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/geocode/reverse?lng=-96.9479&lat=32.9007", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var f geocode.Feature
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, "123 Main St, Dallas, TX", f.DisplayName)
}

func TestHandleReverse_BadCoords(t *testing.T) {
	srv := New(Config{}, newFakeStore(), &fakeRelay{}, quote.Config{}, &fakeGeocoder{}, nil)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/geocode/reverse?lng=abc&lat=32.9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
