package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/quote"
)

// leadResponse is the intake acknowledgement. Dedup is set when the lead ID
// was seen before; the client treats both shapes as success.
type leadResponse struct {
	OK    bool `json:"ok"`
	Dedup bool `json:"dedup,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	var lead model.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	normalizeLead(&lead)
	if msg := validateLead(lead); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	// Honeypot hits and too-fast completions are accepted but flagged, so
	// bots get no signal that they were detected.
	if lead.Honeypot != "" || (lead.TTCMs > 0 && lead.TTCMs < s.cfg.MinCompletion.Milliseconds()) {
		lead.Spam = true
	}

	dedup, err := s.store.SaveLead(r.Context(), lead)
	if err != nil {
		zap.L().Error("server: save lead", zap.String("lead_id", lead.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if dedup {
		writeJSON(w, http.StatusOK, leadResponse{OK: true, Dedup: true})
		return
	}

	if !lead.Spam {
		// Delivery must not be tied to the request lifetime.
		go s.relay.Submit(context.WithoutCancel(r.Context()), lead)
	}
	writeJSON(w, http.StatusOK, leadResponse{OK: true})
}

// quoteRequest carries the inputs for a stateless quote computation.
type quoteRequest struct {
	Meter      *model.GeoPosition `json:"meter,omitempty"`
	Array      *model.GeoPosition `json:"array,omitempty"`
	AvgBillUSD float64            `json:"avg_bill_usd"`
	OffsetPct  float64            `json:"offset_pct"`
}

type quoteResponse struct {
	model.QuoteSummary
	Layout model.GridLayout `json:"layout"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	panels := s.quoteCfg.Sizing.PanelCount(req.AvgBillUSD, req.OffsetPct)
	trench := quote.Trench(req.Meter, req.Array, s.quoteCfg.CostPerFootUSD)
	if req.AvgBillUSD > 0 && panels == 0 {
		trench = model.TrenchMeasurement{}
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		QuoteSummary: model.QuoteSummary{
			Panels:     panels,
			SystemKW:   s.quoteCfg.Sizing.SystemKW(panels),
			Trench:     trench,
			AvgBillUSD: req.AvgBillUSD,
			OffsetPct:  req.OffsetPct,
		},
		Layout: quote.Layout(panels),
	})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if s.geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoding not configured")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	features, err := s.geocoder.Search(r.Context(), query)
	if err != nil {
		zap.L().Warn("server: geocode search", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusBadGateway, "geocode failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"features": features})
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	if s.geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoding not configured")
		return
	}
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if errLng != nil || errLat != nil {
		writeError(w, http.StatusBadRequest, "lng and lat are required")
		return
	}

	feature, err := s.geocoder.Reverse(r.Context(), lng, lat)
	if err != nil {
		zap.L().Warn("server: reverse geocode", zap.Float64("lng", lng), zap.Float64("lat", lat), zap.Error(err))
		writeError(w, http.StatusBadGateway, "reverse geocode failed")
		return
	}
	if feature == nil {
		writeError(w, http.StatusNotFound, "no address at coordinates")
		return
	}
	writeJSON(w, http.StatusOK, feature)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics not configured")
		return
	}
	snap, err := s.collector.Collect(r.Context(), 24)
	if err != nil {
		zap.L().Error("server: collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "metrics failure")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// normalizeLead canonicalizes free-text fields to NFC and trims whitespace so
// equivalent submissions compare equal downstream.
func normalizeLead(lead *model.Lead) {
	lead.ID = strings.TrimSpace(lead.ID)
	lead.Email = norm.NFC.String(strings.TrimSpace(lead.Email))
	lead.Phone = strings.TrimSpace(lead.Phone)
	lead.Address = norm.NFC.String(strings.TrimSpace(lead.Address))
	if lead.TS == 0 {
		lead.TS = time.Now().UnixMilli()
	}
}

// clientIP keys the intake rate limiter. middleware.RealIP has already
// rewritten RemoteAddr from the forwarding headers when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func validateLead(lead model.Lead) string {
	if lead.ID == "" {
		return "id is required"
	}
	if _, err := uuid.Parse(lead.ID); err != nil {
		return "id must be a UUID"
	}
	switch lead.Stage {
	case model.StageAddress, model.StageUsage, model.StageDesign, model.StageContact:
	default:
		return "unknown state"
	}
	if lead.Stage == model.StageContact && lead.Email == "" && lead.Phone == "" {
		return "email or phone is required"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
