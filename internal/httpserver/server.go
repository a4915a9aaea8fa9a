package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yardstick/benchalign/internal/config"
	"github.com/yardstick/benchalign/internal/report"
	"github.com/yardstick/benchalign/internal/results"
	"github.com/yardstick/benchalign/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second
	wsSendQueueSize   = 16
)

// Server wraps the HTTP surface area of the application.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	results    *results.Manager

	maxWSClients int64
	wsActive     atomic.Int64
	wsTotal      atomic.Uint64
	wsRejected   atomic.Uint64
	wsSent       atomic.Uint64
	wsDropped    atomic.Uint64
	wsConnIDs    atomic.Uint64
	requestIDs   atomic.Uint64
}

// New assembles a Server with its handlers.
func New(cfg config.Config, logger *slog.Logger, resultsManager *results.Manager) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger.With("component", "http"),
		results: resultsManager,
	}

	if cfg.WS.MaxClients > 0 {
		s.maxWSClients = int64(cfg.WS.MaxClients)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/api/readyz", s.handleReadyz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api", s.handleAPIDocs)
	mux.HandleFunc("/api/", s.handleAPIDocs)
	mux.HandleFunc("/api/report", s.handleAPIReport)
	mux.HandleFunc("/api/offsets", s.handleAPIOffsets)
	mux.HandleFunc("/api/metrics", s.handleAPIMetrics)
	mux.HandleFunc("/api/metrics/", s.handleAPIMetricSection)
	mux.HandleFunc("/api/reload", s.handleAPIReload)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", s.staticHandler())

	if cfg.EnablePrometheus {
		s.registerPrometheus(mux)
	}
	if cfg.EnablePprof {
		registerPprof(mux)
	}

	handler := s.withRequestLogging(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Handler exposes the root handler, including request logging.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any, what string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.loggerFromContext(r.Context()).Error("failed to encode response", "payload", what, "err", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	info := s.readiness()
	statusCode := http.StatusOK
	if info.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, statusCode, info, "readyz")
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, r, http.StatusOK, version.Current(), "version")
}

func (s *Server) handleAPIDocs(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	if r.URL.Path != "/api" && r.URL.Path != "/api/" {
		http.NotFound(w, r)
		return
	}

	logger := s.loggerFromContext(r.Context())
	data, err := embeddedAssets.ReadFile("assets/api.html")
	if err != nil {
		logger.Error("failed to read api docs asset", "err", err)
		http.Error(w, "missing api docs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		logger.Warn("failed to write api docs response", "err", err)
	}
}

// latest returns the current snapshot or writes a 503.
func (s *Server) latest(w http.ResponseWriter) (results.Snapshot, bool) {
	if s.results == nil {
		http.Error(w, "analysis unavailable", http.StatusServiceUnavailable)
		return results.Snapshot{}, false
	}
	snapshot, ok := s.results.Latest()
	if !ok {
		http.Error(w, "no report available", http.StatusServiceUnavailable)
		return results.Snapshot{}, false
	}
	return snapshot, true
}

func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	snapshot, ok := s.latest(w)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, snapshot.Report, "report")
}

func (s *Server) handleAPIOffsets(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	snapshot, ok := s.latest(w)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, snapshot.Report.Offsets, "offsets")
}

func (s *Server) handleAPIMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	type metricInfo struct {
		report.Metric
		Available bool `json:"available"`
	}
	var rep *report.Report
	if s.results != nil {
		if snapshot, ok := s.results.Latest(); ok {
			rep = snapshot.Report
		}
	}
	out := make([]metricInfo, 0, len(report.Metrics()))
	for _, metric := range report.Metrics() {
		_, available := rep.Section(metric.Column)
		out = append(out, metricInfo{Metric: metric, Available: available})
	}
	s.writeJSON(w, r, http.StatusOK, out, "metrics")
}

type sectionResponse struct {
	report.Section
	BucketSeconds float64         `json:"bucket_seconds"`
	Series        []report.Series `json:"series"`
}

func (s *Server) handleAPIMetricSection(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	column := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/metrics/"), "/")
	metric, known := report.MetricByColumn(column)
	if column == "" || strings.Contains(column, "/") || !known {
		http.NotFound(w, r)
		return
	}

	snapshot, ok := s.latest(w)
	if !ok {
		return
	}
	section, ok := snapshot.Report.Section(column)
	if !ok {
		http.Error(w, "no data for metric", http.StatusNotFound)
		return
	}

	bucket := s.cfg.BucketSeconds
	if bucket <= 0 {
		bucket = report.DefaultBucket
	}
	resp := sectionResponse{
		Section:       section,
		BucketSeconds: bucket,
		Series:        report.BuildSeries(snapshot.Result.Table(metric.Kind), column, bucket),
	}
	s.writeJSON(w, r, http.StatusOK, resp, "metric section")
}

func (s *Server) handleAPIReload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.results == nil {
		http.Error(w, "analysis unavailable", http.StatusServiceUnavailable)
		return
	}
	queued := s.results.Reload()
	s.loggerFromContext(r.Context()).Info("reload requested", "queued", queued)
	s.writeJSON(w, r, http.StatusAccepted, map[string]bool{"queued": queued}, "reload")
}

func (s *Server) registerPrometheus(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "benchalign",
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsActive.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "benchalign",
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted since start.",
		}, func() float64 {
			return float64(s.wsTotal.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "benchalign",
			Subsystem: "ws",
			Name:      "rejected_total",
			Help:      "Total WebSocket connection attempts rejected due to capacity.",
		}, func() float64 {
			return float64(s.wsRejected.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "benchalign",
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Total WebSocket messages sent to clients.",
		}, func() float64 {
			return float64(s.wsSent.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "benchalign",
			Subsystem: "ws",
			Name:      "messages_dropped_total",
			Help:      "Total WebSocket messages dropped due to backpressure.",
		}, func() float64 {
			return float64(s.wsDropped.Load())
		}),
	}

	if reportCollector := newReportCollector(s.results); reportCollector != nil {
		collectors = append(collectors, reportCollector)
	}

	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func (s *Server) readiness() readyResponse {
	if s.results == nil {
		return readyResponse{Status: "degraded", Reason: "analysis_not_configured"}
	}

	resp := readyResponse{Runs: s.results.Runs()}
	if snapshot, ok := s.results.Latest(); ok {
		resp.Status = "ok"
		resp.Sequence = snapshot.Sequence
		return resp
	}

	if err := s.results.LastError(); err != nil {
		resp.Status = "degraded"
		resp.Reason = "last_run_failed"
		resp.Error = err.Error()
		return resp
	}

	resp.Status = "initializing"
	resp.Reason = "waiting_for_first_run"
	return resp
}

type readyResponse struct {
	Status   string `json:"status"`
	Runs     uint64 `json:"runs"`
	Sequence uint64 `json:"sequence,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}
