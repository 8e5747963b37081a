package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramPollBackoff = 3 * time.Second

// ChatMessage is an inbound chat message with its forum-topic metadata.
type ChatMessage struct {
	MessageID int
	ThreadID  int // 0 for the main thread
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	Text      string
	Date      time.Time
}

// DisplayName prefers the @handle, then the full name. It may be empty.
func (m ChatMessage) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// UserInfo is the display name, or the numeric user id when there is none.
func (m ChatMessage) UserInfo() string {
	if name := m.DisplayName(); name != "" {
		return name
	}
	return strconv.FormatInt(m.UserID, 10)
}

// topicMessage adds the forum-topic fields the bot library does not decode.
type topicMessage struct {
	tgbotapi.Message
	MessageThreadID int  `json:"message_thread_id"`
	IsTopicMessage  bool `json:"is_topic_message"`
}

type topicUpdate struct {
	UpdateID int           `json:"update_id"`
	Message  *topicMessage `json:"message"`
}

type TelegramConfig struct {
	Token       string
	APIEndpoint string // defaults to tgbotapi.APIEndpoint
	PollTimeout int    // long-poll seconds
	Client      *http.Client
	Logger      *slog.Logger
}

// TelegramSource long-polls the Bot API for messages and replies in-thread.
type TelegramSource struct {
	bot     *tgbotapi.BotAPI
	timeout int
	logger  *slog.Logger
}

// NewTelegramSource connects to the Bot API and verifies the token.
func NewTelegramSource(cfg TelegramConfig) (*TelegramSource, error) {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.Client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return &TelegramSource{bot: bot, timeout: cfg.PollTimeout, logger: cfg.Logger}, nil
}

// Receive polls until ctx is cancelled, calling handle for every message
// that carries text. Poll failures are logged and retried.
func (t *TelegramSource) Receive(ctx context.Context, handle func(ChatMessage)) error {
	t.logger.Info("telegram polling started")
	offset := 0
	for {
		if ctx.Err() != nil {
			t.logger.Info("telegram polling stopped")
			return nil
		}

		updates, err := t.poll(offset)
		if err != nil {
			t.logger.Warn("telegram getUpdates failed, retrying", "err", err, "backoff", telegramPollBackoff)
			select {
			case <-ctx.Done():
			case <-time.After(telegramPollBackoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if msg, ok := toChatMessage(u); ok {
				handle(msg)
			}
		}
	}
}

func (t *TelegramSource) poll(offset int) ([]topicUpdate, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", offset)
	params.AddNonZero("timeout", t.timeout)
	params["allowed_updates"] = `["message"]`

	resp, err := t.bot.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []topicUpdate
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func toChatMessage(u topicUpdate) (ChatMessage, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return ChatMessage{}, false
	}
	return ChatMessage{
		MessageID: m.MessageID,
		ThreadID:  m.MessageThreadID,
		ChatID:    m.Chat.ID,
		UserID:    m.From.ID,
		Username:  m.From.UserName,
		FirstName: m.From.FirstName,
		LastName:  m.From.LastName,
		Text:      m.Text,
		Date:      time.Unix(int64(m.Date), 0),
	}, true
}

// Reply answers msg in its own thread, quoting it.
func (t *TelegramSource) Reply(ctx context.Context, msg ChatMessage, text string) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", msg.ChatID)
	params["text"] = text
	params.AddNonZero("message_thread_id", msg.ThreadID)
	params.AddNonZero("reply_to_message_id", msg.MessageID)

	if _, err := t.bot.MakeRequest("sendMessage", params); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
