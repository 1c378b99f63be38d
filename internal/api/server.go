package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"nexusdex/internal/metrics"
	"nexusdex/internal/pool"
)

// Config holds HTTP server settings.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimit caps mutating requests per second across all callers. Zero
	// disables the limit.
	RateLimit float64
	RateBurst int
}

// Server exposes a pool over HTTP and streams its reserve updates over websocket.
// Accounts are taken from the request as-is; the server is meant for local
// simulation, not for untrusted callers.
type Server struct {
	manager *pool.Manager
	metrics *metrics.Metrics
	hub     *Hub
	limiter *rate.Limiter
	server  *http.Server
}

// NewServer creates a server for manager. m may be nil.
func NewServer(cfg Config, manager *pool.Manager, m *metrics.Metrics) *Server {
	s := &Server{
		manager: manager,
		metrics: m,
		hub:     NewHub(m),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /pool", s.handlePool)
	mux.HandleFunc("GET /quote", s.handleQuote)
	mux.HandleFunc("GET /balance", s.handleBalance)
	mux.HandleFunc("POST /swap", s.limited(s.handleSwap))
	mux.HandleFunc("POST /deposit", s.limited(s.handleDeposit))
	mux.HandleFunc("POST /approve", s.limited(s.handleApprove))
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// limited rejects the request with 429 when the mutation rate is exceeded.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			if s.metrics != nil {
				s.metrics.RecordRateLimited(r.URL.Path)
			}
			writeError(w, errRateLimited)
			return
		}
		next(w, r)
	}
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server and disconnects stream clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// StreamUpdates forwards the pool's reserve updates to websocket clients
// until ctx is canceled or the update channel is closed.
func (s *Server) StreamUpdates(ctx context.Context) error {
	updates := s.manager.Updates()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, err := json.Marshal(newUpdateResponse(update))
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode reserve update")
				continue
			}
			s.hub.Broadcast(msg)
		}
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
