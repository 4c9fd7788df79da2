// Package server exposes the rewards executor over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sbellem/SiennaNetwork/internal/auth"
	"github.com/sbellem/SiennaNetwork/internal/config"
	"github.com/sbellem/SiennaNetwork/internal/contract"
)

// Version is reported by /health
const Version = "1.0.0"

// Server represents the rewards HTTP API
type Server struct {
	config   config.Config
	exec     *contract.Executor
	issuer   *auth.Issuer
	limiter  *rate.Limiter
	metrics  *serverMetrics
	gatherer prometheus.Gatherer
	decoder  *schema.Decoder

	server    *http.Server
	startTime time.Time
}

// serverMetrics holds Prometheus metrics for the HTTP layer
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     prometheus.Counter
}

func registerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewards_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rewards_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rewards_http_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requestCounter, m.requestDuration, m.rateLimited)
	}
	return m
}

// New creates a server. Metrics are registered with reg and served from
// gatherer; both may be the same *prometheus.Registry.
func New(cfg config.Config, exec *contract.Executor, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		config:    cfg,
		exec:      exec,
		issuer:    auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		metrics:   registerMetrics(reg),
		gatherer:  gatherer,
		decoder:   decoder,
		startTime: time.Now(),
	}

	logrus.WithFields(logrus.Fields{
		"port":       cfg.Port,
		"rate_limit": cfg.RateLimitRPS,
		"burst":      cfg.RateLimitBurst,
		"timeout":    cfg.RequestTimeout,
	}).Info("Server initialized")
	return s
}

// Handler returns the routed handler with all middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/tx", s.route("tx", http.MethodPost, s.authenticated(s.handleTx)))
	mux.Handle("/login", s.route("login", http.MethodPost, s.handleLogin))
	mux.Handle("/status", s.route("status", http.MethodGet, s.handleStatus))
	mux.Handle("/simulate", s.route("simulate", http.MethodGet, s.handleSimulate))
	mux.Handle("/pools", s.route("pools", http.MethodGet, s.handlePools))
	mux.Handle("/summary", s.route("summary", http.MethodGet, s.handleSummary))
	mux.Handle("/receipt", s.route("receipt", http.MethodGet, s.handleReceipt))
	mux.Handle("/balance", s.route("balance", http.MethodGet, s.handleBalance))
	mux.Handle("/circuit", s.route("circuit", "", s.handleCircuit))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return s.withRequestID(mux)
}

// Start serves on the configured port until ctx is done, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Server starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("Server stopped")
	return nil
}

// handleHealth reports liveness, chain height and breaker state
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	height, last, err := s.exec.Height(r.Context())
	status := "OK"
	code := http.StatusOK
	if err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		logrus.Warnf("Health check failed: %v", err)
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    Version,
		"uptime":     time.Since(s.startTime).String(),
		"height":     height,
		"block_time": last,
		"circuit":    s.exec.Breaker().GetState().String(),
		"signer":     s.exec.Signer(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Debugf("Failed to write response: %v", err)
	}
}
