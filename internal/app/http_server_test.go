package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/mosync/internal/health"
	"github.com/vladislavdragonenkov/mosync/internal/version"
)

func findFreePort(t *testing.T) int {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	logger := log.WithField("test", "http")

	// Используем свободный порт
	port := findFreePort(t)
	addr := fmt.Sprintf(":%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	srv := startMetricsServer(ctx, addr, logger, healthHandler)
	defer shutdownHTTP(srv, logger)

	// Даём время на запуск
	time.Sleep(100 * time.Millisecond)

	// Проверяем /metrics
	metricsURL := fmt.Sprintf("http://localhost:%d/metrics", port)
	resp, err := http.Get(metricsURL)
	if err != nil {
		t.Fatalf("failed to get /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200 for /metrics, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		t.Error("/metrics should return non-empty response")
	}

	// Проверяем /healthz
	healthURL := fmt.Sprintf("http://localhost:%d/healthz", port)
	resp2, err := http.Get(healthURL)
	if err != nil {
		t.Fatalf("failed to get /healthz: %v", err)
	}
	defer resp2.Body.Close()

	if resp2.StatusCode != http.StatusOK {
		t.Errorf("expected status 200 for /healthz, got %d", resp2.StatusCode)
	}

	// Проверяем /readyz
	readyURL := fmt.Sprintf("http://localhost:%d/readyz", port)
	resp3, err := http.Get(readyURL)
	if err != nil {
		t.Fatalf("failed to get /readyz: %v", err)
	}
	defer resp3.Body.Close()

	if resp3.StatusCode != http.StatusOK {
		t.Errorf("expected status 200 for /readyz, got %d", resp3.StatusCode)
	}

	// Проверяем /livez
	livezURL := fmt.Sprintf("http://localhost:%d/livez", port)
	resp4, err := http.Get(livezURL)
	if err != nil {
		t.Fatalf("failed to get /livez: %v", err)
	}
	defer resp4.Body.Close()

	if resp4.StatusCode != http.StatusOK {
		t.Errorf("expected status 200 for /livez, got %d", resp4.StatusCode)
	}
}

func TestShutdownHTTP_NilServer(t *testing.T) {
	// nil server - no-op без паники
	shutdownHTTP(nil, log.WithField("test", "http"))
}
