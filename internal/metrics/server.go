package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe checks one dependency. A nil error means reachable.
type Probe func(ctx context.Context) error

// DependencyCheck is the last probe result for one dependency.
type DependencyCheck struct {
	OK        bool      `json:"ok"`
	LatencyMs float64   `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthStatus tracks the outcome of the pipeline run and the reachability
// of its stores. It serves /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	pipeline  string
	startedAt time.Time
	running   bool
	lastRunAt time.Time
	lastErr   error

	probes map[string]Probe
	checks map[string]DependencyCheck
}

func NewHealthStatus(pipeline string) *HealthStatus {
	return &HealthStatus{
		pipeline:  pipeline,
		startedAt: time.Now(),
		probes:    make(map[string]Probe),
		checks:    make(map[string]DependencyCheck),
	}
}

func (h *HealthStatus) SetRunning(v bool) {
	h.mu.Lock()
	h.running = v
	h.mu.Unlock()
}

// RecordRun stores the outcome of a finished run.
func (h *HealthStatus) RecordRun(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	h.lastRunAt = time.Now()
	h.lastErr = err
}

// AddProbe registers a dependency check under name.
func (h *HealthStatus) AddProbe(name string, p Probe) {
	h.mu.Lock()
	h.probes[name] = p
	h.mu.Unlock()
}

// RedisProbe pings a redis client.
func RedisProbe(rdb *goredis.Client) Probe {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

// SQLProbe pings a database handle.
func SQLProbe(db *sql.DB) Probe {
	return db.PingContext
}

// CheckNow runs every registered probe once.
func (h *HealthStatus) CheckNow(ctx context.Context) {
	h.mu.RLock()
	probes := make(map[string]Probe, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.RUnlock()

	for name, p := range probes {
		start := time.Now()
		err := p(ctx)
		c := DependencyCheck{
			OK:        err == nil,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
			CheckedAt: time.Now(),
		}
		if err != nil {
			c.Error = err.Error()
		}
		h.mu.Lock()
		h.checks[name] = c
		h.mu.Unlock()
	}
}

// StartLivenessChecker probes redis and sqlite every interval until ctx is
// done. Nil handles are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	if rdb != nil {
		h.AddProbe("redis", RedisProbe(rdb))
	}
	if sqlDB != nil {
		h.AddProbe("sqlite", SQLProbe(sqlDB))
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckNow(probeCtx)
				cancel()
			}
		}
	}()
}

type healthBody struct {
	Status       string                     `json:"status"`
	Uptime       string                     `json:"uptime"`
	Pipeline     string                     `json:"pipeline"`
	Running      bool                       `json:"running"`
	LastRunOK    bool                       `json:"last_run_ok"`
	LastRunError string                     `json:"last_run_error,omitempty"`
	LastRunAt    *time.Time                 `json:"last_run_at,omitempty"`
	Dependencies map[string]DependencyCheck `json:"dependencies"`
	Failing      []string                   `json:"failing,omitempty"`
}

// ServeHTTP reports 503 when the last run failed or a dependency is down.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	body := healthBody{
		Status:       "healthy",
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		Pipeline:     h.pipeline,
		Running:      h.running,
		LastRunOK:    h.lastErr == nil,
		Dependencies: make(map[string]DependencyCheck, len(h.checks)),
	}
	if !h.lastRunAt.IsZero() {
		at := h.lastRunAt
		body.LastRunAt = &at
	}
	if h.lastErr != nil {
		body.LastRunError = h.lastErr.Error()
	}
	for name, c := range h.checks {
		body.Dependencies[name] = c
		if !c.OK {
			body.Failing = append(body.Failing, name)
		}
	}
	h.mu.RUnlock()
	sort.Strings(body.Failing)

	code := http.StatusOK
	if !body.LastRunOK || len(body.Failing) > 0 {
		body.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[metrics] encode health: %v", err)
	}
}

// Server exposes /metrics and /healthz.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Handler returns the server's mux, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("[metrics] shutdown: %v", err)
	}
}
