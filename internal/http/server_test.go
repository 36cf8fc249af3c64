package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"antispambot/internal/core"
)

func testServerConfig() *core.ServerConfig {
	return &core.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

func get(t *testing.T, url string) (int, string, string) {
	t.Helper()
	req, _ := http.NewRequestWithContext(context.Background(), "GET", url, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to call %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", url, err)
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
}

func TestCreateHTTPServer(t *testing.T) {
	config := &core.ServerConfig{
		Host:         "0.0.0.0",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	mux := http.NewServeMux()
	server := createHTTPServer(config, mux)

	if server.Addr != "0.0.0.0:9090" {
		t.Errorf("createHTTPServer() Addr = %q, expected %q", server.Addr, "0.0.0.0:9090")
	}
	if server.Handler != mux {
		t.Errorf("createHTTPServer() Handler mismatch")
	}
	if server.ReadTimeout != config.ReadTimeout {
		t.Errorf("createHTTPServer() ReadTimeout = %v, expected %v", server.ReadTimeout, config.ReadTimeout)
	}
	if server.WriteTimeout != config.WriteTimeout {
		t.Errorf("createHTTPServer() WriteTimeout = %v, expected %v", server.WriteTimeout, config.WriteTimeout)
	}
}

func TestSetupRoutes(t *testing.T) {
	ready := false
	mux := setupRoutes(zap.NewNop(), prometheus.NewRegistry(), func() bool { return ready })
	server := httptest.NewServer(mux)
	defer server.Close()

	code, contentType, body := get(t, server.URL+"/healthz")
	if code != http.StatusOK || contentType != "application/json" {
		t.Errorf("/healthz returned %d %q", code, contentType)
	}
	if body != `{"status":"ok","service":"antispambot"}` {
		t.Errorf("/healthz body = %q", body)
	}

	code, _, body = get(t, server.URL+"/readyz")
	if code != http.StatusServiceUnavailable || body != `{"status":"starting","service":"antispambot"}` {
		t.Errorf("/readyz before ready returned %d %q", code, body)
	}

	ready = true
	code, _, body = get(t, server.URL+"/readyz")
	if code != http.StatusOK || body != `{"status":"ready","service":"antispambot"}` {
		t.Errorf("/readyz returned %d %q", code, body)
	}

	if code, _, _ = get(t, server.URL+"/metrics"); code != http.StatusOK {
		t.Errorf("/metrics returned status %d", code)
	}

	code, contentType, body = get(t, server.URL+"/")
	if code != http.StatusOK || contentType != "text/html" || !strings.Contains(body, "/metrics") {
		t.Errorf("/ returned %d %q", code, contentType)
	}

	if code, _, _ = get(t, server.URL+"/missing"); code != http.StatusNotFound {
		t.Errorf("/missing returned status %d, expected 404", code)
	}
}

func counterValue(t *testing.T, s *Server, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := s.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestServer_Recorder(t *testing.T) {
	s := NewServer(testServerConfig(), zap.NewNop())

	s.RecordChallenge("individual")
	s.RecordChallenge("individual")
	s.RecordChallenge("flooding")
	s.RecordVerification("passed")
	s.RecordModeration("kick", true)
	s.RecordModeration("kick", false)
	s.RecordGC("users", 3)
	s.RecordGC("users", 0)
	s.RecordSchedulingAnomaly()
	s.RecordScorerCall("openai", errors.New("timeout"), 20*time.Millisecond)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"antispambot_challenges_total", map[string]string{"mode": "individual"}, 2},
		{"antispambot_challenges_total", map[string]string{"mode": "flooding"}, 1},
		{"antispambot_verifications_total", map[string]string{"outcome": "passed"}, 1},
		{"antispambot_moderation_actions_total", map[string]string{"action": "kick", "status": "ok"}, 1},
		{"antispambot_moderation_actions_total", map[string]string{"action": "kick", "status": "error"}, 1},
		{"antispambot_gc_freed_total", map[string]string{"kind": "users"}, 3},
		{"antispambot_scheduling_anomalies_total", nil, 1},
		{"antispambot_scorer_calls_total", map[string]string{"scorer": "openai", "status": "error"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, s, tt.name, tt.labels); got != tt.want {
				t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
			}
		})
	}
}

func TestServer_PendingJobsGauge(t *testing.T) {
	s := NewServer(testServerConfig(), zap.NewNop())
	pending := 4
	s.RegisterPendingJobs(func() int { return pending })

	if got := counterValue(t, s, "antispambot_pending_jobs", nil); got != 4 {
		t.Errorf("pending jobs = %v, want 4", got)
	}
	pending = 1
	if got := counterValue(t, s, "antispambot_pending_jobs", nil); got != 1 {
		t.Errorf("pending jobs = %v, want 1", got)
	}
}

func TestServer_StartStops(t *testing.T) {
	s := NewServer(testServerConfig(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
