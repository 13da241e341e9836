package vastwatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// testConfig returns a tight-timing config pointed at a fake provider.
func testConfig(t *testing.T, apiBase string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Processes = []string{"vastwatch-test-absent-process"}
	cfg.IdleTimeout = 30 * time.Millisecond
	cfg.CheckInterval = 10 * time.Millisecond
	cfg.Target = "7"
	cfg.APIKey = "test-key"
	cfg.APIBase = apiBase
	cfg.DataDir = t.TempDir()
	cfg.Log.Level = "error"
	cfg.Log.Color = false
	return cfg
}

// fakeProvider serves the two provider endpoints the monitor uses and
// counts DELETE calls.
func fakeProvider(t *testing.T, stops *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/api/v0/instances/"):
			_, _ = w.Write([]byte(`{"instances":[{"id":7,"label":"bench","actual_status":"running"}]}`))
		case r.Method == http.MethodDelete:
			stops.Add(1)
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestFacadeRunStopsIdleInstance(t *testing.T) {
	var stops atomic.Int32
	provider := fakeProvider(t, &stops)
	cfg := testConfig(t, provider.URL)

	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.RunID() == "" {
		t.Fatal("empty run id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := stops.Load(); got != 1 {
		t.Fatalf("stop calls=%d want exactly 1", got)
	}
	rec, err := ReadStatus(cfg.DataDir)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if !rec.Final() || rec.State != "stopped" {
		t.Fatalf("final record: %+v", rec)
	}
}

func TestFacadeCancelledByCommand(t *testing.T) {
	var stops atomic.Int32
	provider := fakeProvider(t, &stops)
	cfg := testConfig(t, provider.URL)
	cfg.IdleTimeout = 10 * time.Second
	cfg.CheckInterval = 10 * time.Millisecond

	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() { done <- m.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if _, err := SendCommand(cfg.DataDir, ActionStopMonitoring); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not exit after stop-monitoring")
	}

	if got := stops.Load(); got != 0 {
		t.Fatalf("stop calls=%d want 0 after cancellation", got)
	}
	rec, err := ReadStatus(cfg.DataDir)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if rec.ExitReason == "" || rec.State != "stopped" {
		t.Fatalf("final record: %+v", rec)
	}
}

func TestSendCommand_RejectsUnknownAction(t *testing.T) {
	if _, err := SendCommand(t.TempDir(), "reboot"); err == nil {
		t.Fatal("expected validation error for unknown action")
	}
}

func TestReadStatus_NoRecord(t *testing.T) {
	_, err := ReadStatus(t.TempDir())
	if !errors.Is(err, ErrNoStatus) {
		t.Fatalf("expected ErrNoStatus, got %v", err)
	}
}

func TestLockHelpers(t *testing.T) {
	dir := t.TempDir()
	if MonitorLive(dir) {
		t.Fatal("fresh dir reported live")
	}
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if !MonitorLive(dir) {
		t.Fatal("held lock not reported live")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if MonitorLive(dir) {
		t.Fatal("released lock still reported live")
	}
}

func TestInstancesFacade(t *testing.T) {
	var stops atomic.Int32
	provider := fakeProvider(t, &stops)
	cfg := testConfig(t, provider.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	instances, err := Instances(ctx, cfg)
	if err != nil {
		t.Fatalf("Instances: %v", err)
	}
	if len(instances) != 1 || instances[0].ID != 7 || instances[0].Label != "bench" {
		t.Fatalf("instances: %+v", instances)
	}
}
