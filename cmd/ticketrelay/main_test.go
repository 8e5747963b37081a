package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"ticketrelay/internal/classify"
	"ticketrelay/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relay.log")
	closeLog, err := setupLogger(config.GeneralConfig{LogLevel: "info", LogFile: path})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("expected log output in file")
	}
}

func TestBuildClassifier_FallsBackToRules(t *testing.T) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Defaults()
	cfg.Classifier.Mode = "model"
	cfg.Classifier.Provider = "gemini"

	c, err := buildClassifier(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*classify.Rules); !ok {
		t.Errorf("expected keyword rules without an API key, got %T", c)
	}

	pc := cfg.Providers["gemini"]
	pc.APIKey = "key"
	cfg.Providers["gemini"] = pc
	c, err = buildClassifier(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*classify.Model); !ok {
		t.Errorf("expected model classifier, got %T", c)
	}
}
