package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"ticketrelay/internal/domain"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type echoHandler struct {
	mu     sync.Mutex
	frames []string
	delay  time.Duration
}

func (h *echoHandler) Handle(ctx context.Context, raw []byte) domain.Acknowledgment {
	time.Sleep(h.delay)
	h.mu.Lock()
	h.frames = append(h.frames, string(raw))
	h.mu.Unlock()
	if string(raw) == "fail" {
		return domain.ErrorAck("Schema not found")
	}
	return domain.SuccessAck("rec-" + string(raw))
}

func startServer(t *testing.T, h Handler) (*Server, string) {
	t.Helper()
	s := New(Config{Path: "/", ReadLimit: 1024, Handler: h, Logger: testLogger()})
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readAck(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ack map[string]any
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("ack is not JSON: %s", data)
	}
	return ack
}

func TestGateway_AcknowledgesOnSameConnection(t *testing.T) {
	_, url := startServer(t, &echoHandler{})
	conn := dial(t, url)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("one")); err != nil {
		t.Fatal(err)
	}
	ack := readAck(t, conn)
	if ack["status"] != "success" || ack["storeRecordId"] != "rec-one" {
		t.Errorf("unexpected ack %v", ack)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("fail"))
	ack = readAck(t, conn)
	if ack["status"] != "error" || ack["error"] != "Schema not found" {
		t.Errorf("unexpected ack %v", ack)
	}
}

func TestGateway_ConcurrentMessagesAllAnswered(t *testing.T) {
	_, url := startServer(t, &echoHandler{delay: 20 * time.Millisecond})
	conn := dial(t, url)

	const n = 5
	for i := 0; i < n; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte{byte('a' + i)}); err != nil {
			t.Fatal(err)
		}
	}
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		ack := readAck(t, conn)
		seen[ack["storeRecordId"].(string)] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct acks, got %v", n, seen)
	}
}

func TestGateway_ProcessingSurvivesDisconnect(t *testing.T) {
	h := &echoHandler{delay: 50 * time.Millisecond}
	_, url := startServer(t, h)
	conn := dial(t, url)

	conn.WriteMessage(websocket.TextMessage, []byte("late"))
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		n := len(h.frames)
		h.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("message was not processed after the client disconnected")
}

func TestGateway_Healthz(t *testing.T) {
	s, _ := startServer(t, &echoHandler{})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected body %v", body)
	}
}

type blockingHandler struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	done    int
}

func (h *blockingHandler) Handle(ctx context.Context, raw []byte) domain.Acknowledgment {
	h.once.Do(func() { close(h.started) })
	<-h.release
	h.mu.Lock()
	h.done++
	h.mu.Unlock()
	return domain.SuccessAck("rec")
}

func TestServe_ShutdownWaitsForInflight(t *testing.T) {
	h := &blockingHandler{started: make(chan struct{}), release: make(chan struct{})}
	s := New(Config{Handler: h, Logger: testLogger()})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	conn := dial(t, "ws://"+ln.Addr().String()+"/")
	conn.WriteMessage(websocket.TextMessage, []byte("slow"))
	select {
	case <-h.started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}
	if n := s.Clients(); n != 1 {
		t.Fatalf("expected 1 open connection, got %d", n)
	}

	cancel()
	select {
	case <-served:
		t.Fatal("Serve returned while an ingestion was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.release)
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the ingestion finished")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done != 1 {
		t.Errorf("expected 1 finished ingestion, got %d", h.done)
	}
}

func TestServer_DispatchRefusedWhileClosing(t *testing.T) {
	h := &echoHandler{}
	s := New(Config{Handler: h, Logger: testLogger()})
	s.closeAllClients()

	c := &client{id: "c1"}
	if s.dispatch(c, []byte("late")) {
		t.Fatal("expected dispatch to be refused after shutdown began")
	}
	if c.state() != StateConnected {
		t.Errorf("expected no task to start, state %v", c.state())
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.frames) != 0 {
		t.Errorf("expected no frames handled, got %v", h.frames)
	}
}

func TestClientState(t *testing.T) {
	c := &client{}
	if c.state() != StateConnected {
		t.Fatalf("expected connected, got %v", c.state())
	}
	c.begin()
	if c.state() != StateProcessing {
		t.Fatalf("expected processing, got %v", c.state())
	}
	c.end()
	c.closed = true
	if c.state() != StateClosed {
		t.Fatalf("expected closed, got %v", c.state())
	}
	if err := c.send(domain.SuccessAck("x")); err != errClosed {
		t.Errorf("expected errClosed, got %v", err)
	}
}
