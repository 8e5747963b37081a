package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"ticketrelay/internal/metrics"
)

// StatusServer exposes the relay's health and Prometheus metrics over HTTP.
type StatusServer struct {
	addr        string
	bridge      *Bridge
	metrics     *metrics.Metrics
	metricsPath string
	logger      *slog.Logger
}

type StatusConfig struct {
	Addr        string
	Bridge      *Bridge
	Metrics     *metrics.Metrics
	MetricsPath string // default: /metrics
	Logger      *slog.Logger
}

func NewStatusServer(cfg StatusConfig) *StatusServer {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &StatusServer{
		addr:        cfg.Addr,
		bridge:      cfg.Bridge,
		metrics:     cfg.Metrics,
		metricsPath: cfg.MetricsPath,
		logger:      cfg.Logger,
	}
}

// Routes serves /healthz and, when metrics are enabled, the metrics path.
func (s *StatusServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}
	return mux
}

// Start serves until ctx is cancelled.
func (s *StatusServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *StatusServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("relay status listening", "addr", ln.Addr().String(), "metrics", s.metricsPath)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.bridge != nil && s.bridge.Connected()
	status := "ok"
	if !connected {
		status = "disconnected"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"connected": connected,
	})
}
