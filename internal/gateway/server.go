// Package gateway accepts persistent WebSocket connections and runs every
// inbound frame through the ingestion pipeline, answering on the same
// connection.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"ticketrelay/internal/domain"
	"ticketrelay/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler processes one raw frame into an acknowledgment.
type Handler interface {
	Handle(ctx context.Context, raw []byte) domain.Acknowledgment
}

type Config struct {
	Addr        string
	Path        string // WebSocket endpoint path (default: /)
	ReadLimit   int64  // max inbound frame size in bytes, 0 = unlimited
	Handler     Handler
	Metrics     *metrics.Metrics
	MetricsPath string // served on the same mux when non-empty
	Logger      *slog.Logger
}

// Server is the ingestion gateway.
type Server struct {
	addr        string
	path        string
	readLimit   int64
	handler     Handler
	metrics     *metrics.Metrics
	metricsPath string
	logger      *slog.Logger
	server      *http.Server

	mu      sync.RWMutex
	clients map[string]*client
	closing bool // set once shutdown begins; no new ingestions start after it

	// in-flight ingestions, which outlive their connection
	inflight sync.WaitGroup
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // clients are not authenticated
	},
}

func New(cfg Config) *Server {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		addr:        cfg.Addr,
		path:        cfg.Path,
		readLimit:   cfg.ReadLimit,
		handler:     cfg.Handler,
		metrics:     cfg.Metrics,
		metricsPath: cfg.MetricsPath,
		logger:      cfg.Logger,
		clients:     make(map[string]*client),
	}
}

// Routes returns the HTTP handler serving the WebSocket endpoint, /healthz
// and, when configured, the metrics endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsPath != "" && s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}
	mux.HandleFunc(s.path, s.handleUpgrade)
	return mux
}

// Start serves until ctx is cancelled, then closes every connection and
// waits for in-flight ingestions to finish.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway listening", "addr", ln.Addr().String(), "path", s.path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gateway shutting down", "connections", s.Clients())
		s.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.server.Shutdown(shutdownCtx)
		s.inflight.Wait()
		return err
	case err := <-errCh:
		return err
	}
}

// Clients returns the number of open connections.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.mu.RLock()
	processing := 0
	for _, c := range s.clients {
		if c.state() == StateProcessing {
			processing++
		}
	}
	total := len(s.clients)
	s.mu.RUnlock()

	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": total,
		"processing":  processing,
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	if s.readLimit > 0 {
		conn.SetReadLimit(s.readLimit)
	}

	c := &client{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	s.mu.Unlock()
	s.metrics.ConnectionOpened()

	s.logger.Info("client connected", "client_id", c.id, "remote", r.RemoteAddr)

	defer func() {
		c.close()
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		s.metrics.ConnectionClosed()
		s.logger.Info("client disconnected", "client_id", c.id, "in_flight", c.busy.Load())
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "client_id", c.id, "err", err)
			}
			return
		}
		s.logger.Debug("frame received", "client_id", c.id, "bytes", len(frame))

		if !s.dispatch(c, frame) {
			s.logger.Warn("frame dropped during shutdown", "client_id", c.id)
			return
		}
	}
}

// dispatch starts one ingestion task. Each message is an independent task
// that runs to completion even if the connection closes underneath it. The
// read lock orders every inflight.Go before the Wait in Serve.
func (s *Server) dispatch(c *client, frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closing {
		return false
	}
	c.begin()
	s.inflight.Go(func() {
		defer c.end()
		ack := s.handler.Handle(context.Background(), frame)
		if err := c.send(ack); err != nil {
			s.logger.Debug("acknowledgment not delivered", "client_id", c.id, "err", err)
		}
	})
	return true
}

func (s *Server) closeAllClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for _, c := range s.clients {
		c.close()
	}
}
