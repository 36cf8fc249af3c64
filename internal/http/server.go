package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"antispambot/internal/core"
)

const serviceName = "antispambot"

type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	registry *prometheus.Registry
	metrics  *Metrics
	ready    atomic.Bool
}

type Metrics struct {
	ChallengesTotal     *prometheus.CounterVec
	VerificationsTotal  *prometheus.CounterVec
	ModerationTotal     *prometheus.CounterVec
	GCFreedTotal        *prometheus.CounterVec
	SchedulingAnomalies prometheus.Counter
	ScorerCallsTotal    *prometheus.CounterVec
	ScorerDuration      prometheus.Histogram
}

var _ core.Recorder = (*Server)(nil)

func newMetrics() *Metrics {
	return &Metrics{
		ChallengesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antispambot_challenges_total",
				Help: "Total number of challenges issued",
			},
			[]string{"mode"},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antispambot_verifications_total",
				Help: "Total number of challenge answers and timeouts by outcome",
			},
			[]string{"outcome"},
		),
		ModerationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antispambot_moderation_actions_total",
				Help: "Total number of moderation calls to the chat platform",
			},
			[]string{"action", "status"},
		),
		GCFreedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antispambot_gc_freed_total",
				Help: "Total number of entries freed by garbage collection",
			},
			[]string{"kind"},
		),
		SchedulingAnomalies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "antispambot_scheduling_anomalies_total",
				Help: "Total number of timeout cancellations that did not match exactly one job",
			},
		),
		ScorerCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antispambot_scorer_calls_total",
				Help: "Total number of display name scorer calls",
			},
			[]string{"scorer", "status"},
		),
		ScorerDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "antispambot_scorer_duration_seconds",
				Help:    "Time spent scoring display names",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func NewServer(config *core.ServerConfig, logger *zap.Logger) *Server {
	metrics := newMetrics()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.ChallengesTotal,
		metrics.VerificationsTotal,
		metrics.ModerationTotal,
		metrics.GCFreedTotal,
		metrics.SchedulingAnomalies,
		metrics.ScorerCallsTotal,
		metrics.ScorerDuration,
	)

	s := &Server{
		config:   config,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
	}
	s.server = createHTTPServer(config, setupRoutes(logger, registry, s.ready.Load))
	return s
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func setupRoutes(logger *zap.Logger, gatherer prometheus.Gatherer, ready func() bool) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, logger, http.StatusOK, "ok")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !ready() {
			writeStatus(w, logger, http.StatusServiceUnavailable, "starting")
			return
		}
		writeStatus(w, logger, http.StatusOK, "ready")
	})

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", homeHandler(logger))

	return mux
}

func writeStatus(w http.ResponseWriter, logger *zap.Logger, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body := `{"status":` + strconv.Quote(status) + `,"service":"` + serviceName + `"}`
	if _, err := w.Write([]byte(body)); err != nil {
		logger.Debug("Failed to write status response", zap.Error(err))
	}
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>antispambot</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
    </style>
</head>
<body>
    <h1 class="header">antispambot</h1>
    <p>Telegram group join verification</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint"><a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint"><a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// SetReady flips /readyz to 200 once state is restored and the bot is connected
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// RegisterPendingJobs exposes the number of scheduled one-shot jobs as a gauge
func (s *Server) RegisterPendingJobs(pending func() int) {
	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "antispambot_pending_jobs",
			Help: "Number of scheduled timeouts, unbans and deletions",
		},
		func() float64 { return float64(pending()) },
	))
}

func (s *Server) RecordChallenge(mode string) {
	s.metrics.ChallengesTotal.WithLabelValues(mode).Inc()
}

func (s *Server) RecordVerification(outcome string) {
	s.metrics.VerificationsTotal.WithLabelValues(outcome).Inc()
}

func (s *Server) RecordModeration(action string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	s.metrics.ModerationTotal.WithLabelValues(action, status).Inc()
}

func (s *Server) RecordGC(kind string, freed int) {
	s.metrics.GCFreedTotal.WithLabelValues(kind).Add(float64(freed))
}

func (s *Server) RecordSchedulingAnomaly() {
	s.metrics.SchedulingAnomalies.Inc()
}

func (s *Server) RecordScorerCall(scorer string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ScorerCallsTotal.WithLabelValues(scorer, status).Inc()
	s.metrics.ScorerDuration.Observe(duration.Seconds())
}
