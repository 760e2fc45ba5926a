package ws

import (
	"time"

	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
)

type EventType string

// Входящие события клиента.
const (
	EventJoinChat    EventType = "join_chat"
	EventLeaveChat   EventType = "leave_chat"
	EventSendMessage EventType = "send_message"
	EventTypingStart EventType = "typing_start"
	EventTypingStop  EventType = "typing_stop"
	EventMarkAsRead  EventType = "mark_as_read"
)

// Исходящие события сервера.
const (
	EventNewMessage        EventType = "new_message"
	EventMessageSent       EventType = "message_sent"
	EventUserTyping        EventType = "user_typing"
	EventUserStoppedTyping EventType = "user_stopped_typing"
	EventMessageRead       EventType = "message_read"
	EventMessageEdited     EventType = "message_edited"
	EventMessageDeleted    EventType = "message_deleted"
	EventChatCreated       EventType = "chat_created"
	EventError             EventType = "error"
)

// Сообщения об ошибках для клиента.
const (
	errAccessDenied   = "Access denied to this chat"
	errSendFailed     = "Failed to send message"
	errChatIDRequired = "Chat ID is required"
	errTooManyEvents  = "Too many events"
	errUnknownEvent   = "Unknown event type"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type        EventType          `json:"type"`
	ChatID      string             `json:"chatId,omitempty"`
	Content     string             `json:"content,omitempty"`
	MessageType model.MessageType  `json:"messageType,omitempty"`
	ReplyTo     string             `json:"replyTo,omitempty"`
	MessageID   string             `json:"messageId,omitempty"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ChatMessagePayload: new_message и message_sent. Relay-сообщение не сохраняется; messageId
// приходит от клиента, если тот уже сохранил сообщение через REST.
type ChatMessagePayload struct {
	ChatID      string             `json:"chatId"`
	MessageID   string             `json:"messageId,omitempty"`
	Content     string             `json:"content"`
	MessageType model.MessageType  `json:"messageType"`
	ReplyTo     string             `json:"replyTo,omitempty"`
	Attachments []model.Attachment `json:"attachments"`
	Sender      *model.UserProfile `json:"sender"`
	Timestamp   time.Time          `json:"timestamp"`
}

// TypingPayload: user_typing (с профилем) и user_stopped_typing.
type TypingPayload struct {
	ChatID string             `json:"chatId"`
	UserID string             `json:"userId"`
	User   *model.UserProfile `json:"user,omitempty"`
}

// MessageReadPayload is broadcast when messages are read.
type MessageReadPayload struct {
	ChatID    string `json:"chatId"`
	UserID    string `json:"userId"`
	MessageID string `json:"messageId,omitempty"`
	Count     int64  `json:"count,omitempty"`
}

// MessageDeletedPayload is broadcast when a message is deleted.
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) OutgoingMessage {
	return OutgoingMessage{Type: EventError, Payload: ErrorPayload{Message: msg}}
}
