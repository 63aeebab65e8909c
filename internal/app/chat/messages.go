/*
Package chat contains the delivery coordinator for the two-party messaging
core: per-connection protocol handling, message fan-out, and read-receipt
propagation.

This file defines the wire protocol. Every frame in either direction is a
JSON envelope {"event": ..., "payload": ...}; payload shapes follow the
event tables below.
*/
package chat

import (
	"time"

	"dmchat/internal/app/store"
)

// Client → server events.
const (
	EventGetHistory    = "getHistory"
	EventSendMessage   = "sendMessage"
	EventMarkAsRead    = "markAsRead"
	EventGetUserStatus = "getUserStatus"
)

// Server → client events. EventSendMessage and EventMarkAsRead double as
// ack events; userStatus lives in the presence package.
const (
	EventChatHistory = "chatHistory"
	EventNewMessage  = "newMessage"
	EventMessageRead = "messageRead"
	EventOnlineUsers = "onlineUsers"
	EventError       = "error"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Envelope is the outbound frame shape.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// SendMessagePayload is the inbound payload of a sendMessage request.
type SendMessagePayload struct {
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
}

// MarkAsReadPayload is the inbound payload of a markAsRead request.
type MarkAsReadPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

// AckPayload acknowledges a successful operation on the event name the
// client used.
type AckPayload struct {
	Status string `json:"status"`
}

// ErrorPayload reports an operation failure.
type ErrorPayload struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// HistoryPayload answers a getHistory request. Data carries the chat's
// full ordered message sequence; Error is set instead when the request
// failed.
type HistoryPayload struct {
	Data   []store.Message `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
	Status string          `json:"status"`
}

// NewMessagePayload is pushed to interested connections when a message is
// stored. The author's own connection never receives it.
type NewMessagePayload struct {
	ChatID  string        `json:"chatId"`
	Message store.Message `json:"message"`
}

// MessageReadPayload is pushed only to the message author's live
// connections when a reader first reads the message.
type MessageReadPayload struct {
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	ReadAt    time.Time `json:"readAt"`
	ReaderID  string    `json:"readerId"`
}

func ack() AckPayload {
	return AckPayload{Status: statusOK}
}

func errorPayload(message string) ErrorPayload {
	return ErrorPayload{Error: message, Status: statusError}
}
