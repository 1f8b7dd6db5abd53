package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ipscope/ipscope/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.LoadFromBytes([]byte("server:\n  http:\n    addr: 127.0.0.1:0\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Audit.Enabled = true
	cfg.Audit.Storage.SQLitePath = filepath.Join(dir, "events.db")
	return cfg
}

func TestServerServesAndShutsDown(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	base := "http://" + srv.Addr()
	deadline := time.Now().Add(5 * time.Second)
	var resp *http.Response
	for time.Now().Before(deadline) {
		resp, err = http.Get(base + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("healthz never came up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Post(base+"/api/v1/tasks", "application/json", strings.NewReader(`{"ips": "garbage"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid submit status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(base + "/api/v1/tasks/missing")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task status = %d, want 404", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	_ = srv.Close()
}

func TestNewSkipsAuditStoresWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = false

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	if _, err := os.Stat(cfg.Audit.Storage.SQLitePath); !os.IsNotExist(err) {
		t.Fatalf("audit disabled but sqlite store was created (stat err: %v)", err)
	}
}

func TestNewRefusesPublicBindWithoutAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HTTP.Addr = "0.0.0.0:0"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected refusal to bind publicly with auth disabled")
	}
}
