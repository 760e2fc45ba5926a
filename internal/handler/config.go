package handler

import (
	"net/http"

	"github.com/tamangRajkumar/backend-final-year-project/internal/config"
)

// ConfigHandler отдаёт публичные параметры конфигурации.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetPushConfig возвращает публичный VAPID-ключ для подписки на пуши (если включены).
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	if h.cfg.PushServiceURL == "" || h.cfg.PushVAPIDPublicKey == "" {
		writeOK(w, http.StatusOK, "", map[string]any{"enabled": false})
		return
	}
	writeOK(w, http.StatusOK, "", map[string]any{
		"enabled":        true,
		"vapidPublicKey": h.cfg.PushVAPIDPublicKey,
	})
}
