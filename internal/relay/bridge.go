// Package relay forwards messages from one chat forum topic to the
// ingestion gateway over a single persistent WebSocket connection.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"ticketrelay/internal/domain"
	"ticketrelay/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	replyForwarded   = "✅ Message received and forwarded to support system."
	replyUnavailable = "⚠️ Support system temporarily unavailable. Your message has been logged and will be processed as soon as possible."
)

// Payload is the frame sent to the gateway for one chat message.
type Payload struct {
	From           string `json:"from"`
	Username       string `json:"username"`
	Text           string `json:"text"`
	TelegramUserID int64  `json:"telegram_user_id"`
	ChatID         int64  `json:"chat_id"`
	Timestamp      string `json:"timestamp"`
}

// Conn is the subset of *websocket.Conn the bridge uses.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens the connection to the gateway.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials with gorilla/websocket.
type WSDialer struct {
	Dialer *websocket.Dialer
}

func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RetryPolicy decides how long to wait before reconnect attempt n (1-based).
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// FixedDelay waits the same time before every attempt, forever.
type FixedDelay time.Duration

func (d FixedDelay) NextDelay(int) time.Duration { return time.Duration(d) }

// Notifier answers the sender of a chat message.
type Notifier interface {
	Reply(ctx context.Context, msg ChatMessage, text string) error
}

type BridgeConfig struct {
	GatewayURL string
	ThreadID   int
	Dialer     Dialer
	Retry      RetryPolicy
	Notifier   Notifier // nil disables replies
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Bridge holds at most one gateway connection. Messages that arrive while
// it is down are dropped, not queued.
type Bridge struct {
	url      string
	threadID int
	dialer   Dialer
	retry    RetryPolicy
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	conn Conn

	kick chan struct{}
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Dialer == nil {
		cfg.Dialer = WSDialer{}
	}
	if cfg.Retry == nil {
		cfg.Retry = FixedDelay(5 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		url:      cfg.GatewayURL,
		threadID: cfg.ThreadID,
		dialer:   cfg.Dialer,
		retry:    cfg.Retry,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
}

// Run keeps the gateway connection up until ctx is cancelled. After every
// failed dial or dropped connection it waits the policy's delay, or less if
// a dropped message asked for a reconnect.
func (b *Bridge) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.conn != nil {
			b.conn.Close()
		}
	})
	defer stop()

	attempt := 0
	for {
		conn, err := b.dialer.Dial(ctx, b.url)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.metrics.RelayDial(false)
			attempt++
			delay := b.retry.NextDelay(attempt)
			b.logger.Warn("gateway connection failed", "url", b.url, "err", err, "retry_in", delay)
			if !b.wait(ctx, delay) {
				return nil
			}
			continue
		}

		b.metrics.RelayDial(true)
		attempt = 0
		b.setConn(conn)
		b.logger.Info("connected to gateway", "url", b.url)
		if ctx.Err() != nil {
			conn.Close()
			return nil
		}

		b.readAcks(conn)

		b.setConn(nil)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		delay := b.retry.NextDelay(attempt)
		b.logger.Warn("gateway connection closed, reconnecting", "retry_in", delay)
		b.metrics.RelayReconnect()
		if !b.wait(ctx, delay) {
			return nil
		}
	}
}

func (b *Bridge) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-b.kick:
	}
	return true
}

// readAcks logs acknowledgments until the connection fails.
func (b *Bridge) readAcks(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.logger.Debug("gateway read ended", "err", err)
			return
		}
		var ack domain.Acknowledgment
		if err := json.Unmarshal(data, &ack); err != nil {
			b.logger.Warn("unreadable gateway response", "err", err)
			continue
		}
		switch ack.Status {
		case domain.AckSuccess:
			b.logger.Info("ticket stored", "record_id", ack.StoreRecordID)
		case domain.AckError:
			b.logger.Error("ticket not stored", "err", ack.ErrorText())
		}
	}
}

func (b *Bridge) setConn(c Conn) {
	b.mu.Lock()
	b.conn = c
	b.mu.Unlock()
	if c != nil {
		// A reconnect requested before this dial is already satisfied.
		select {
		case <-b.kick:
		default:
		}
	}
}

// Connected reports whether the gateway connection is open.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Handle admits messages from the target thread and forwards them.
func (b *Bridge) Handle(ctx context.Context, msg ChatMessage) {
	if msg.ThreadID != b.threadID {
		thread := "main"
		if msg.ThreadID != 0 {
			thread = strconv.Itoa(msg.ThreadID)
		}
		b.logger.Info("ignored message from thread", "thread", thread, "chat_id", msg.ChatID)
		b.metrics.RelayDropped("thread")
		return
	}

	from := msg.UserInfo()
	payload := Payload{
		From:           from,
		Username:       from,
		Text:           msg.Text,
		TelegramUserID: msg.UserID,
		ChatID:         msg.ChatID,
		Timestamp:      b.now().UTC().Format(time.RFC3339),
	}
	b.logger.Info("chat message", "from", from, "chat_id", msg.ChatID, "text_len", len(msg.Text))

	if err := b.forward(payload); err != nil {
		b.logger.Error("gateway not available, message dropped", "err", err)
		b.metrics.RelayDropped("not_connected")
		b.reply(ctx, msg, replyUnavailable)
		b.requestReconnect()
		return
	}
	b.metrics.RelayForwarded()
	b.reply(ctx, msg, replyForwarded)
}

var errNotConnected = errors.New("gateway connection is not open")

func (b *Bridge) forward(p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return errNotConnected
	}
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The read loop notices the broken connection and reconnects.
		b.conn.Close()
		return err
	}
	return nil
}

func (b *Bridge) requestReconnect() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

func (b *Bridge) reply(ctx context.Context, msg ChatMessage, text string) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Reply(ctx, msg, text); err != nil {
		b.logger.Warn("chat reply failed", "chat_id", msg.ChatID, "err", err)
	}
}
