package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeBotAPI answers the Bot API methods the source uses.
type fakeBotAPI struct {
	mu    sync.Mutex
	sent  []map[string]string
	polls int
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/getUpdates"):
		f.mu.Lock()
		f.polls++
		first := f.polls == 1
		f.mu.Unlock()
		if !first {
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":5,"message_thread_id":2,"is_topic_message":true,
			 "date":1700000000,"text":"help","chat":{"id":-100,"type":"supergroup"},
			 "from":{"id":42,"is_bot":false,"first_name":"Ann","username":"ann"}}},
			{"update_id":11,"edited_message":{"message_id":6}}
		]}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		f.mu.Lock()
		f.sent = append(f.sent, map[string]string{
			"chat_id":             r.PostForm.Get("chat_id"),
			"text":                r.PostForm.Get("text"),
			"message_thread_id":   r.PostForm.Get("message_thread_id"),
			"reply_to_message_id": r.PostForm.Get("reply_to_message_id"),
		})
		f.mu.Unlock()
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":9,"date":1700000001,"chat":{"id":-100,"type":"supergroup"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestSource(t *testing.T, api *fakeBotAPI) *TelegramSource {
	t.Helper()
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)
	src, err := NewTelegramSource(TelegramConfig{
		Token:       "TOKEN",
		APIEndpoint: ts.URL + "/bot%s/%s",
		PollTimeout: 1,
		Client:      ts.Client(),
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("NewTelegramSource: %v", err)
	}
	return src
}

func TestTelegramSource_ReceiveDecodesThread(t *testing.T) {
	src := newTestSource(t, &fakeBotAPI{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got []ChatMessage
	src.Receive(ctx, func(m ChatMessage) {
		got = append(got, m)
		cancel()
	})

	if len(got) != 1 {
		t.Fatalf("expected one message, got %d", len(got))
	}
	m := got[0]
	if m.ThreadID != 2 || m.ChatID != -100 || m.UserID != 42 || m.MessageID != 5 || m.Text != "help" {
		t.Errorf("unexpected message %+v", m)
	}
	if m.UserInfo() != "@ann" {
		t.Errorf("unexpected user info %q", m.UserInfo())
	}
}

func TestTelegramSource_ReplyInThread(t *testing.T) {
	api := &fakeBotAPI{}
	src := newTestSource(t, api)

	err := src.Reply(context.Background(), ChatMessage{MessageID: 5, ThreadID: 2, ChatID: -100}, replyForwarded)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected one sendMessage, got %d", len(api.sent))
	}
	sent := api.sent[0]
	if sent["chat_id"] != "-100" || sent["message_thread_id"] != "2" || sent["reply_to_message_id"] != "5" {
		t.Errorf("unexpected params %v", sent)
	}
	if sent["text"] != replyForwarded {
		t.Errorf("unexpected text %q", sent["text"])
	}
}
