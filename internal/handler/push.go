package handler

import (
	"net/http"

	"github.com/tamangRajkumar/backend-final-year-project/internal/middleware"
	"github.com/tamangRajkumar/backend-final-year-project/internal/push"
)

// PushHandler проксирует подписку на пуш-уведомления в push-сервис.
type PushHandler struct {
	client *push.Client
}

func NewPushHandler(client *push.Client) *PushHandler {
	return &PushHandler{client: client}
}

// SubscribeRequest: тело от фронта (subscription из PushManager.getSubscription()).
type SubscribeRequest struct {
	Subscription push.Subscription `json:"subscription"`
}

// UnsubscribeRequest: тело для отписки по endpoint.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if !h.client.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Push notifications are disabled")
		return
	}
	var req SubscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Subscription.Endpoint == "" || req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys are required")
		return
	}
	if err := h.client.Subscribe(r.Context(), middleware.GetUserID(r.Context()), req.Subscription); err != nil {
		writeServiceError(w, "push.Subscribe", err)
		return
	}
	writeOK(w, http.StatusOK, "Subscribed", nil)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if !h.client.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Push notifications are disabled")
		return
	}
	var req UnsubscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	if err := h.client.Unsubscribe(r.Context(), middleware.GetUserID(r.Context()), req.Endpoint); err != nil {
		writeServiceError(w, "push.Unsubscribe", err)
		return
	}
	writeOK(w, http.StatusOK, "Unsubscribed", nil)
}
