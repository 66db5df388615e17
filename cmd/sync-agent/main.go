package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/app"
	"github.com/vladislavdragonenkov/mosync/internal/version"
)

// setupLogger настраивает формат и уровень логирования агента.
// Уровень можно переопределить через MOSYNC_LOG_LEVEL.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(resolveLogLevel(os.Getenv("MOSYNC_LOG_LEVEL")))
}

func resolveLogLevel(raw string) log.Level {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return log.InfoLevel
	}
	level, err := log.ParseLevel(raw)
	if err != nil {
		log.WithField("value", raw).Warn("неизвестный уровень логирования, используем info")
		return log.InfoLevel
	}
	return level
}

func main() {
	setupLogger()
	cfg := app.ConfigFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":      version.GetVersion(),
		"api_url":      cfg.APIBaseURL,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
	}).Info("запускаем sync-agent")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("агент завершился с ошибкой")
	}

	log.Info("sync-agent остановлен")
}
