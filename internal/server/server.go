// Package server exposes the lead intake and quote HTTP API.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/monitoring"
	"github.com/solterra-energy/quote-cli/internal/quote"
	"github.com/solterra-energy/quote-cli/internal/store"
	"github.com/solterra-energy/quote-cli/pkg/geocode"
)

// LeadRelay is the slice of the relay the intake handler needs.
type LeadRelay interface {
	Submit(ctx context.Context, lead model.Lead)
	Wake()
}

// Config holds the HTTP-facing tunables.
type Config struct {
	MinCompletion  time.Duration // submissions faster than this are flagged as spam
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.MinCompletion <= 0 {
		c.MinCompletion = 3 * time.Second
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 5
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 10
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	return c
}

// Server wires the intake handlers to the store, relay, and geocoder.
type Server struct {
	cfg       Config
	store     store.Store
	relay     LeadRelay
	quoteCfg  quote.Config
	geocoder  geocode.Client
	collector *monitoring.Collector
	limiter   *ipLimiter
}

// ipLimiter hands out one token bucket per client IP so a single noisy
// client cannot lock out everyone behind the same endpoint.
type ipLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*rate.Limiter
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*rate.Limiter),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.clients[ip]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.clients[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// New creates a Server. geocoder and collector may be nil; their routes
// return 503 when unconfigured.
func New(cfg Config, st store.Store, relay LeadRelay, quoteCfg quote.Config, geocoder geocode.Client, collector *monitoring.Collector) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:       cfg,
		store:     st,
		relay:     relay,
		quoteCfg:  quoteCfg,
		geocoder:  geocoder,
		collector: collector,
		limiter:   newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/leads", s.handleLead)
		r.Post("/quote", s.handleQuote)
		r.Get("/geocode", s.handleGeocode)
		r.Get("/geocode/reverse", s.handleReverse)
		r.Get("/status", s.handleStatus)
	})
	return r
}

// requestLogger logs each request with method, path, status, and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
