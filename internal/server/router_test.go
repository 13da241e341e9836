package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/vastwatch/internal/ipc"
	"github.com/loykin/vastwatch/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, basePath string) (*ipc.StatusChannel, http.Handler) {
	t.Helper()
	status := ipc.NewStatusChannel(t.TempDir())
	return status, NewRouter(status, basePath).Handler()
}

func TestHealthz(t *testing.T) {
	_, h := newTestRouter(t, "")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", w.Code)
	}
	var resp okResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp.OK {
		t.Fatalf("unexpected body %s (%v)", w.Body.String(), err)
	}
}

func TestStatus_NoRecordYet(t *testing.T) {
	_, h := newTestRouter(t, "")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", w.Code)
	}
	var resp errorResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Error == "" {
		t.Fatalf("expected error body, got %s", w.Body.String())
	}
}

func TestStatus_ReturnsLatestRecord(t *testing.T) {
	status, h := newTestRouter(t, "")
	rec := ipc.StatusRecord{
		RunID:       "run-1",
		PID:         4242,
		Timestamp:   time.Now().UTC(),
		State:       "counting",
		AnyAlive:    false,
		IdleSeconds: 30,
	}
	if err := status.Write(rec); err != nil {
		t.Fatalf("write status: %v", err)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200: %s", w.Code, w.Body.String())
	}
	var got ipc.StatusRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.RunID != "run-1" || got.State != "counting" || got.IdleSeconds != 30 {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestStatus_ServedUnderBasePath(t *testing.T) {
	status, h := newTestRouter(t, "/monitor")
	if err := status.Write(ipc.StatusRecord{State: "idle"}); err != nil {
		t.Fatalf("write status: %v", err)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/monitor/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", w.Code)
	}
	// The bare path must not be routed.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("bare path status=%d want 404", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("register metrics: %v", err)
	}
	metrics.IncTick()

	_, h := newTestRouter(t, "")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "vastwatch_ticks_total") {
		t.Errorf("metrics output missing vastwatch_ticks_total")
	}
}

func TestNewServer_ServesAndShutsDown(t *testing.T) {
	status := ipc.NewStatusChannel(t.TempDir())
	srv, err := NewServer("127.0.0.1:0", "", status)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer func() { _ = srv.Close() }()
	// Addr with port 0 binds to an ephemeral port inside ListenAndServe;
	// only exercise lifecycle here, routing is covered above.
	time.Sleep(20 * time.Millisecond)
	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
