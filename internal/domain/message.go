package domain

import (
	"encoding/json"
	"time"
)

// Source identifies the intake channel that produced a message.
type Source string

const (
	SourceWeb  Source = "Web"
	SourceChat Source = "Telegram"
)

// UnknownSender is the sender label used when a payload names nobody.
const UnknownSender = "Unknown"

// IncomingMessage is one support message received by the gateway.
type IncomingMessage struct {
	Text        string
	SenderLabel string
	Source      Source
	SentAt      time.Time
}

// AckStatus is the outcome reported back to the sender.
type AckStatus string

const (
	AckSuccess AckStatus = "success"
	AckError   AckStatus = "error"
)

// Acknowledgment is sent back on the channel that delivered the message.
// Error holds either a JSON string or the upstream error body verbatim.
type Acknowledgment struct {
	Status        AckStatus       `json:"status"`
	StoreRecordID string          `json:"storeRecordId,omitempty"`
	Error         json.RawMessage `json:"error,omitempty"`
}

// SuccessAck acknowledges a stored record.
func SuccessAck(recordID string) Acknowledgment {
	return Acknowledgment{Status: AckSuccess, StoreRecordID: recordID}
}

// ErrorAck wraps a plain error description as a JSON string.
func ErrorAck(detail string) Acknowledgment {
	raw, _ := json.Marshal(detail)
	return Acknowledgment{Status: AckError, Error: raw}
}

// RawErrorAck carries an already-encoded error body. Invalid JSON is sent as a string.
func RawErrorAck(body []byte) Acknowledgment {
	if len(body) == 0 || !json.Valid(body) {
		return ErrorAck(string(body))
	}
	return Acknowledgment{Status: AckError, Error: json.RawMessage(body)}
}

// ErrorText renders the error detail for logs.
func (a Acknowledgment) ErrorText() string {
	var s string
	if err := json.Unmarshal(a.Error, &s); err == nil {
		return s
	}
	return string(a.Error)
}
