package modelserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"multilingual-rag/internal/config"
)

// TestHelperProcess stands in for the model server binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("HELPER_IGNORE_TERM") == "1" {
		signal.Ignore(syscall.SIGTERM)
	}
	time.Sleep(time.Minute)
	os.Exit(0)
}

func helperConfig(t *testing.T, baseURL string) config.ServerConfig {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	cfg := config.DefaultConfig().Server
	cfg.Command = os.Args[0]
	cfg.Args = []string{"-test.run=TestHelperProcess", "--", config.ModelPlaceholder}
	cfg.BaseURL = baseURL
	cfg.TerminateGraceSecs = 1
	return cfg
}

func healthServer(t *testing.T, healthyAfter int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if healthyAfter < 0 || n < healthyAfter {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("Ollama is running"))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestTerminateBeforeStart(t *testing.T) {
	m := New(config.DefaultConfig().Server)
	if err := m.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := m.Terminate(); err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
	if m.State() != Terminated {
		t.Fatalf("state = %s", m.State())
	}
	if err := m.RequireReady(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("RequireReady = %v", err)
	}
}

func TestStartAndAwaitReady(t *testing.T) {
	srv, hits := healthServer(t, 3)
	m := New(helperConfig(t, srv.URL))

	if err := m.Start(context.Background(), "llama3.2"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Terminate()

	if m.State() != Starting {
		t.Fatalf("state = %s, want starting", m.State())
	}
	if err := m.RequireReady(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("ready before any probe: %v", err)
	}

	if err := m.AwaitReady(context.Background(), 5, 5*time.Millisecond); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("probes = %d, want 3", got)
	}
	if err := m.RequireReady(); err != nil {
		t.Fatalf("RequireReady: %v", err)
	}

	if err := m.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if m.State() != Terminated {
		t.Fatalf("state = %s", m.State())
	}
	if err := m.Terminate(); err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
}

func TestAwaitReadyNeverHealthy(t *testing.T) {
	srv, hits := healthServer(t, -1)
	m := New(helperConfig(t, srv.URL))
	if err := m.Start(context.Background(), "llama3.2"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Terminate()

	err := m.AwaitReady(context.Background(), 3, time.Millisecond)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("probes = %d, want 3", got)
	}
	if m.State() != Failed {
		t.Fatalf("state = %s, want failed", m.State())
	}
	if err := m.RequireReady(); err == nil {
		t.Fatal("failed server reported ready")
	}
}

func TestAwaitReadyCancelled(t *testing.T) {
	srv, _ := healthServer(t, -1)
	m := New(helperConfig(t, srv.URL))
	if err := m.Start(context.Background(), "llama3.2"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Terminate()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.AwaitReady(ctx, 1000, 5*time.Millisecond)
	if err == nil || errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want context error", err)
	}
	if m.State() != Failed {
		t.Fatalf("state = %s", m.State())
	}
}

func TestStartTwice(t *testing.T) {
	srv, _ := healthServer(t, 1)
	m := New(helperConfig(t, srv.URL))
	if err := m.Start(context.Background(), "m"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Terminate()
	if err := m.Start(context.Background(), "m"); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestStartMissingBinary(t *testing.T) {
	cfg := config.DefaultConfig().Server
	cfg.Command = filepath.Join(t.TempDir(), "no-such-server")
	m := New(cfg)
	if err := m.Start(context.Background(), "m"); err == nil {
		t.Fatal("expected start error")
	}
	if m.State() != Failed {
		t.Fatalf("state = %s", m.State())
	}
	if err := m.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
}

func TestAwaitReadyWithoutStart(t *testing.T) {
	m := New(config.DefaultConfig().Server)
	if err := m.AwaitReady(context.Background(), 1, time.Millisecond); err == nil {
		t.Fatal("expected error before Start")
	}
}

func TestTerminateKillsStubbornProcess(t *testing.T) {
	srv, _ := healthServer(t, 1)
	cfg := helperConfig(t, srv.URL)
	cfg.LogFile = filepath.Join(t.TempDir(), "server.log")
	t.Setenv("HELPER_IGNORE_TERM", "1")

	m := New(cfg)
	if err := m.Start(context.Background(), "m"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// give the child time to install its signal handler
	time.Sleep(500 * time.Millisecond)

	start := time.Now()
	if err := m.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if elapsed := time.Since(start); elapsed < cfg.TerminateGrace() {
		t.Fatalf("killed after %s, before the grace period", elapsed)
	}
	if _, err := os.Stat(cfg.LogFile); err != nil {
		t.Fatalf("log file: %v", err)
	}
}
