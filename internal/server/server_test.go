package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/keerthanasaravanan18/college/internal/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestNewRequiresHandler(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := New(cfg, newTestLogger(), nil); err == nil {
		t.Fatalf("expected error when handler is nil")
	}
}

func TestNewUsesConfiguredAddress(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Listen.Address = "127.0.0.1"
	cfg.Server.Listen.Port = 9090

	srv, err := New(cfg, newTestLogger(), http.NewServeMux())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := srv.Addr(); got != "127.0.0.1:9090" {
		t.Fatalf("expected addr 127.0.0.1:9090, got %s", got)
	}
}

func TestRunServesUntilContextCancelled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Listen.Address = "127.0.0.1"
	cfg.Server.Listen.Port = 0

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv, err := New(cfg, newTestLogger(), handler)
	if err != nil {
		t.Fatalf("unexpected error building server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "127.0.0.1:0" {
		if time.Now().After(deadline) {
			t.Fatalf("listener never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not return after cancellation")
	}
}

func TestRunReportsListenFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Listen.Address = "256.0.0.1"
	cfg.Server.Listen.Port = 0

	srv, err := New(cfg, newTestLogger(), http.NewServeMux())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := srv.Run(context.Background()); err == nil {
		t.Fatalf("expected listen error for invalid address")
	}
}
