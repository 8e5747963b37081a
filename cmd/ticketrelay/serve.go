package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketrelay/internal/config"
	"ticketrelay/internal/gateway"
	"ticketrelay/internal/ingest"
	"ticketrelay/internal/metrics"
	"ticketrelay/internal/relay"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg)
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the ingestion gateway (WebSocket server)",
		Long:  "Accepts messages over WebSocket, classifies them and stores them in Airtable. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()
	if err := cfg.RequireStore(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	classifier, err := buildClassifier(cfg)
	if err != nil {
		return err
	}
	client, discoverer := buildStore(cfg)
	m := newMetrics(cfg)

	pipelineCfg := ingest.Config{
		Classifier: classifier,
		Schemas:    discoverer,
		Store:      client,
		Table:      cfg.Store.Table,
		Metrics:    m,
		Logger:     logger,
	}
	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	if ledger != nil {
		defer ledger.Close()
		pipelineCfg.Ledger = ledger
	}

	// Warm-up read so a bad base or table shows up in the log at startup.
	if fields, err := discoverer.Fetch(ctx, cfg.Store.Table); err != nil {
		logger.Warn("schema not available at startup", "table", cfg.Store.Table, "err", err)
	} else {
		logger.Info("schema loaded", "table", cfg.Store.Table, "fields", len(fields))
		for _, f := range fields {
			logger.Debug("schema field", "name", f.Name, "type", f.Type)
		}
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	srv := gateway.New(gateway.Config{
		Addr:        cfg.Gateway.Addr(),
		Path:        cfg.Gateway.Path,
		ReadLimit:   cfg.Gateway.ReadLimit,
		Handler:     ingest.New(pipelineCfg),
		Metrics:     m,
		MetricsPath: metricsPath,
		Logger:      logger,
	})

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Start the Telegram relay",
		Long:  "Forwards messages from the configured Telegram forum topic to the gateway. Press Ctrl+C to stop.",
		RunE:  runRelay,
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()
	if err := cfg.RequireRelay(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := relay.NewTelegramSource(relay.TelegramConfig{
		Token:       cfg.Relay.Token,
		PollTimeout: cfg.Relay.PollTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	m := newMetrics(cfg)
	bridgeCfg := relay.BridgeConfig{
		GatewayURL: cfg.Relay.GatewayURL,
		ThreadID:   cfg.Relay.TargetThreadID,
		Retry:      relay.FixedDelay(cfg.Relay.ReconnectDelay.Std()),
		Metrics:    m,
		Logger:     logger,
	}
	if cfg.Relay.Replies {
		bridgeCfg.Notifier = source
	}
	bridge := relay.NewBridge(bridgeCfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		bridge.Run(ctx)
	}()

	if cfg.Relay.MetricsAddr != "" {
		status := relay.NewStatusServer(relay.StatusConfig{
			Addr:        cfg.Relay.MetricsAddr,
			Bridge:      bridge,
			Metrics:     m,
			MetricsPath: cfg.Metrics.Path,
			Logger:      logger,
		})
		go func() {
			if err := status.Start(ctx); err != nil {
				logger.Error("relay status server failed", "addr", cfg.Relay.MetricsAddr, "err", err)
			}
		}()
	}

	logger.Info("relay started. Press Ctrl+C to stop.",
		"gateway", cfg.Relay.GatewayURL,
		"thread", cfg.Relay.TargetThreadID,
	)
	err = source.Receive(ctx, func(msg relay.ChatMessage) {
		bridge.Handle(ctx, msg)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("relay shutdown timed out")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
