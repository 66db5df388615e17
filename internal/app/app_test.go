package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newAgentAPIServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == ordersPath {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "order-1", "name": "Первый заказ", "status": "pending"},
				},
				"total": 1,
			})
			return
		}

		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "ref-1", "name": "reference"},
		})
	}))
}

func TestRun_GracefulShutdown(t *testing.T) {
	server := newAgentAPIServer(t)
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = server.URL
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory
	cfg.KafkaBrokers = ""

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	// Даём агенту подняться и выполнить первую синхронизацию
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRun_UnsupportedStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "sqlite"

	err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
	if !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRun_PostgresRequiresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = ""

	err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error when postgres driver has no DSN")
	}
}
