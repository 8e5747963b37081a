package ingest

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"ticketrelay/internal/domain"
)

// ParsePayload turns one inbound frame into an IncomingMessage. A frame that
// is not a JSON object is taken verbatim as the message text. Malformed
// payloads are never an error.
//
// Recognised keys: text, username, from, timestamp (RFC 3339). A frame that
// carries "from" came through the chat relay.
func ParsePayload(raw []byte, receivedAt time.Time) domain.IncomingMessage {
	msg := domain.IncomingMessage{
		Text:        string(raw),
		SenderLabel: domain.UnknownSender,
		Source:      domain.SourceWeb,
		SentAt:      receivedAt,
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return msg
	}

	if text := stringValue(obj["text"]); text != "" {
		msg.Text = text
	}
	from := stringValue(obj["from"])
	if from != "" {
		msg.Source = domain.SourceChat
	}
	if username := stringValue(obj["username"]); username != "" {
		msg.SenderLabel = username
	} else if from != "" {
		msg.SenderLabel = from
	}
	if ts := stringValue(obj["timestamp"]); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			msg.SentAt = t
		}
	}
	return msg
}

// stringValue renders scalar JSON values as text. Objects, arrays, null and
// false count as absent.
func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == 0 {
			return ""
		}
		// Plain digits up to 1e21, exponent form beyond it.
		if math.Abs(x) < 1e21 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "true"
		}
	}
	return ""
}
