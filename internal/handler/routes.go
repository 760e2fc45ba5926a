package handler

import "github.com/go-chi/chi/v5"

// ChatRoutes регистрирует /api/chat. Аутентификация подключается снаружи.
func ChatRoutes(r chi.Router, chats *ChatHandler, msgs *MessageHandler) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/create", chats.CreateChat)
		r.Get("/", chats.ListChats)
		r.Get("/unread/count", chats.UnreadCount)

		r.Get("/messages/{messageId}", msgs.GetMessage)
		r.Put("/messages/{messageId}", msgs.EditMessage)
		r.Delete("/messages/{messageId}", msgs.DeleteMessage)

		r.Get("/{chatId}", chats.GetChat)
		r.Delete("/{chatId}", chats.LeaveChat)
		r.Put("/{chatId}/read", chats.MarkRead)
		r.Put("/{chatId}/archive", chats.ArchiveChat)
		r.Put("/{chatId}/unarchive", chats.UnarchiveChat)
		r.Get("/{chatId}/messages", msgs.ListMessages)
		r.Post("/{chatId}/messages", msgs.SendMessage)
	})
}
