package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestResolveLogLevel(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want log.Level
	}{
		{name: "empty defaults to info", raw: "", want: log.InfoLevel},
		{name: "debug", raw: "debug", want: log.DebugLevel},
		{name: "warn with spaces", raw: "  warn  ", want: log.WarnLevel},
		{name: "uppercase error", raw: "ERROR", want: log.ErrorLevel},
		{name: "unknown falls back to info", raw: "loud", want: log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveLogLevel(tt.raw); got != tt.want {
				t.Errorf("resolveLogLevel(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSetupLogger_HonoursEnv(t *testing.T) {
	t.Setenv("MOSYNC_LOG_LEVEL", "debug")

	prev := log.GetLevel()
	defer log.SetLevel(prev)

	setupLogger()

	if log.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %v", log.GetLevel())
	}
}
