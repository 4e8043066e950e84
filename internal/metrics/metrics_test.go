package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// scrape renders reg in the Prometheus text format.
func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestPipeline_NilIsNoop(t *testing.T) {
	var m *Pipeline
	m.ObserveRead()
	m.ObserveDrop()
	m.ObserveIssue("technicals")
	m.ObserveSignal("simple_sma", "LONG")
	m.ObserveStage("technicals", time.Millisecond)
	m.ObservePersist("sqlite", time.Millisecond, nil)
	m.ObserveRun("daily", time.Second, nil)
	m.SetBreakerState("redis", 1)
}

func TestPipeline_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipeline(reg)

	m.ObserveRead()
	m.ObserveRead()
	m.ObserveIssue("strategy")
	m.ObserveSignal("simple_sma", "LONG")
	m.ObservePersist("sqlite", time.Millisecond, errors.New("disk full"))

	out := scrape(t, reg)
	for _, want := range []string{
		"pipeline_candles_read_total 2",
		`pipeline_stage_issues_total{stage="strategy"} 1`,
		`pipeline_signals_total{direction="LONG",strategy="simple_sma"} 1`,
		`pipeline_persist_total{result="error",sink="sqlite"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipeline(reg)
	m.ObserveRead()

	health := NewHealthStatus("daily")
	srv := NewServer(":0", reg, health)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "pipeline_candles_read_total 1") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}

	health.RecordRun(errors.New("source unreachable"))
	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after failed run, got %d", resp.StatusCode)
	}
	var hb map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&hb); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if hb["last_run_error"] != "source unreachable" {
		t.Errorf("last_run_error = %v", hb["last_run_error"])
	}
}

func TestHealthStatus_FailingDependency(t *testing.T) {
	health := NewHealthStatus("returns")
	health.AddProbe("sqlite", func(ctx context.Context) error { return nil })
	health.AddProbe("redis", func(ctx context.Context) error { return errors.New("connection refused") })
	health.CheckNow(context.Background())
	health.RecordRun(nil)

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with redis down, got %d", rec.Code)
	}
	var hb healthBody
	if err := json.NewDecoder(rec.Body).Decode(&hb); err != nil {
		t.Fatal(err)
	}
	if len(hb.Failing) != 1 || hb.Failing[0] != "redis" {
		t.Errorf("failing = %v", hb.Failing)
	}
	if !hb.Dependencies["sqlite"].OK || hb.Dependencies["redis"].Error != "connection refused" {
		t.Errorf("dependencies = %+v", hb.Dependencies)
	}
	if !hb.LastRunOK || hb.Status != "degraded" {
		t.Errorf("status = %s, last_run_ok = %v", hb.Status, hb.LastRunOK)
	}
}
