package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iamvazu/SQAN/internal/testsupport"
	"github.com/iamvazu/SQAN/internal/workflow"
)

type idleQC struct{}

func (idleQC) Start(context.Context) error { return nil }
func (idleQC) Stop()                       {}
func (idleQC) Status(context.Context) workflow.StatusSummary {
	return workflow.StatusSummary{Running: true}
}

func newTestServer(t *testing.T) (*Daemon, *prometheus.Registry) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	reg := prometheus.NewRegistry()
	d, err := New(cfg, testsupport.MustOpenStore(t, cfg), nil, Components{QC: idleQC{}, Gatherer: reg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, reg
}

func serve(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPIRequiresBearerToken(t *testing.T) {
	d, _ := newTestServer(t)
	h := d.api.routes("secret")

	if w := serve(h, http.MethodGet, "/api/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/status", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/status", "secret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	d, _ := newTestServer(t)
	h := d.api.routes("secret")

	w := serve(h, http.MethodGet, "/healthz", "")
	if w.Code == http.StatusUnauthorized {
		t.Fatal("healthz must not require a token")
	}
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", w.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	d, reg := newTestServer(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "sqan_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	w := serve(d.api.routes(""), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "sqan_test_total 1") {
		t.Fatalf("expected counter in output, got %q", w.Body.String())
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	d, _ := newTestServer(t)
	w := serve(d.api.routes(""), http.MethodPost, "/api/notifications/test", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ntfy topic not configured") {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
}

func TestAllReady(t *testing.T) {
	if !allReady([]ComponentHealth{HealthyComponent("store")}) {
		t.Fatal("expected ready")
	}
	if allReady([]ComponentHealth{HealthyComponent("store"), UnhealthyComponent("ingest", "halted")}) {
		t.Fatal("expected not ready")
	}
}
