package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	"github.com/tamangRajkumar/backend-final-year-project/internal/middleware"
	"github.com/tamangRajkumar/backend-final-year-project/internal/service"
	"github.com/tamangRajkumar/backend-final-year-project/internal/ws"
)

// Broadcaster: realtime-рассылка (ws.Hub).
type Broadcaster interface {
	BroadcastToChat(ctx context.Context, chatID string, msg ws.OutgoingMessage)
	SendToUser(ctx context.Context, userID string, msg ws.OutgoingMessage)
	RemoveFromRoom(ctx context.Context, userID, chatID string)
}

type ChatHandler struct {
	svc *service.ChatService
	hub Broadcaster
}

func NewChatHandler(svc *service.ChatService, hub Broadcaster) *ChatHandler {
	return &ChatHandler{svc: svc, hub: hub}
}

type CreateChatRequest struct {
	ParticipantID string `json:"participantId"`
}

// CreateChat возвращает существующий direct-чат (200) или создаёт новый (201) и оповещает собеседника.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("chat.CreateChat", time.Now())()
	var req CreateChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID := middleware.GetUserID(r.Context())
	chat, created, err := h.svc.CreateOrGetChat(r.Context(), userID, req.ParticipantID)
	if err != nil {
		writeServiceError(w, "chat.CreateChat", err)
		return
	}
	if !created {
		writeOK(w, http.StatusOK, "Chat retrieved successfully", chat)
		return
	}
	for _, p := range chat.Participants {
		if p.ID != userID {
			h.hub.SendToUser(r.Context(), p.ID, ws.OutgoingMessage{Type: ws.EventChatCreated, Payload: chat})
		}
	}
	writeOK(w, http.StatusCreated, "Chat created successfully", chat)
}

func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("chat.ListChats", time.Now())()
	userID := middleware.GetUserID(r.Context())
	chats, p, err := h.svc.ListChats(r.Context(), userID, queryInt(r, "page", 1), queryInt(r, "limit", service.DefaultChatPageSize))
	if err != nil {
		writeServiceError(w, "chat.ListChats", err)
		return
	}
	writePage(w, chats, p, "totalChats")
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.GetChat(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "chatId"))
	if err != nil {
		writeServiceError(w, "chat.GetChat", err)
		return
	}
	writeOK(w, http.StatusOK, "", chat)
}

func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.UnreadCount(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "chat.UnreadCount", err)
		return
	}
	writeOK(w, http.StatusOK, "", map[string]int64{"unreadCount": n})
}

// MarkRead ставит квитанции и сообщает комнате, сколько сообщений прочитано.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chatID := chi.URLParam(r, "chatId")
	n, err := h.svc.MarkRead(r.Context(), userID, chatID)
	if err != nil {
		writeServiceError(w, "chat.MarkRead", err)
		return
	}
	if n > 0 {
		h.hub.BroadcastToChat(r.Context(), chatID, ws.OutgoingMessage{
			Type:    ws.EventMessageRead,
			Payload: ws.MessageReadPayload{ChatID: chatID, UserID: userID, Count: n},
		})
	}
	writeOK(w, http.StatusOK, "Messages marked as read", map[string]int64{"markedCount": n})
}

// LeaveChat (DELETE /api/chat/{chatId}): пользователь выходит из чата.
func (h *ChatHandler) LeaveChat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chatID := chi.URLParam(r, "chatId")
	if err := h.svc.LeaveChat(r.Context(), userID, chatID); err != nil {
		writeServiceError(w, "chat.LeaveChat", err)
		return
	}
	// соединения ушедшего больше не получают события комнаты
	h.hub.RemoveFromRoom(r.Context(), userID, chatID)
	writeOK(w, http.StatusOK, "Chat deleted successfully", nil)
}

func (h *ChatHandler) ArchiveChat(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ArchiveChat(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "chatId")); err != nil {
		writeServiceError(w, "chat.ArchiveChat", err)
		return
	}
	writeOK(w, http.StatusOK, "Chat archived successfully", nil)
}

func (h *ChatHandler) UnarchiveChat(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.UnarchiveChat(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "chatId")); err != nil {
		writeServiceError(w, "chat.UnarchiveChat", err)
		return
	}
	writeOK(w, http.StatusOK, "Chat unarchived successfully", nil)
}
