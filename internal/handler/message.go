package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	"github.com/tamangRajkumar/backend-final-year-project/internal/middleware"
	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
	"github.com/tamangRajkumar/backend-final-year-project/internal/service"
	"github.com/tamangRajkumar/backend-final-year-project/internal/ws"
)

type MessageHandler struct {
	svc *service.ChatService
	hub Broadcaster
}

func NewMessageHandler(svc *service.ChatService, hub Broadcaster) *MessageHandler {
	return &MessageHandler{svc: svc, hub: hub}
}

type SendMessageRequest struct {
	Content     string             `json:"content"`
	MessageType model.MessageType  `json:"messageType"`
	ReplyTo     string             `json:"replyTo"`
	Attachments []model.Attachment `json:"attachments"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

// ListMessages отдаёт страницу истории; чтение ставит квитанции, и комната узнаёт об этом.
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("message.ListMessages", time.Now())()
	userID := middleware.GetUserID(r.Context())
	chatID := chi.URLParam(r, "chatId")
	page, err := h.svc.ListMessages(r.Context(), userID, chatID, queryInt(r, "page", 1), queryInt(r, "limit", service.DefaultMessagePageSize))
	if err != nil {
		writeServiceError(w, "message.ListMessages", err)
		return
	}
	if page.Marked > 0 {
		h.hub.BroadcastToChat(r.Context(), chatID, ws.OutgoingMessage{
			Type:    ws.EventMessageRead,
			Payload: ws.MessageReadPayload{ChatID: chatID, UserID: userID, Count: page.Marked},
		})
	}
	writePage(w, page.Messages, page.Pagination, "totalMessages")
}

// SendMessage сохраняет сообщение. Рассылку в комнату делает клиент через send_message.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("message.SendMessage", time.Now())()
	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.svc.SendMessage(r.Context(), service.SendInput{
		SenderID:    middleware.GetUserID(r.Context()),
		ChatID:      chi.URLParam(r, "chatId"),
		Content:     req.Content,
		MessageType: req.MessageType,
		ReplyTo:     req.ReplyTo,
		Attachments: req.Attachments,
	})
	if err != nil {
		writeServiceError(w, "message.SendMessage", err)
		return
	}
	writeOK(w, http.StatusCreated, "Message sent successfully", m)
}

func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "messageId"))
	if err != nil {
		writeServiceError(w, "message.GetMessage", err)
		return
	}
	writeOK(w, http.StatusOK, "", m)
}

func (h *MessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.svc.EditMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "messageId"), req.Content)
	if err != nil {
		writeServiceError(w, "message.EditMessage", err)
		return
	}
	h.hub.BroadcastToChat(r.Context(), m.ChatID, ws.OutgoingMessage{Type: ws.EventMessageEdited, Payload: m})
	writeOK(w, http.StatusOK, "Message updated successfully", m)
}

func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	m, changed, err := h.svc.DeleteMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "messageId"))
	if err != nil {
		writeServiceError(w, "message.DeleteMessage", err)
		return
	}
	if changed {
		h.hub.BroadcastToChat(r.Context(), m.ChatID, ws.OutgoingMessage{
			Type:    ws.EventMessageDeleted,
			Payload: ws.MessageDeletedPayload{MessageID: m.ID, ChatID: m.ChatID},
		})
	}
	writeOK(w, http.StatusOK, "Message deleted successfully", nil)
}
