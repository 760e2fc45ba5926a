package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
)

// ErrNotFound возвращают все реализации, когда запись отсутствует.
var ErrNotFound = errors.New("not found")

// ChatStore: хранилище чатов.
// Реализации: repository.ChatRepository (Postgres), mongo.Store, memory.Store.
type ChatStore interface {
	GetByID(ctx context.Context, id string) (*model.Chat, error)
	// FindDirect ищет direct-чат, в котором состоят оба пользователя.
	FindDirect(ctx context.Context, a, b string) (*model.Chat, error)
	// CreateDirect создаёт direct-чат; если пара уже получила чат параллельно, возвращает существующий.
	CreateDirect(ctx context.Context, c *model.Chat) (*model.Chat, error)
	// ListForUser возвращает активные неархивированные чаты пользователя и их общее число.
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]model.Chat, int, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	// RemoveParticipant убирает пользователя из чата и из archivedBy; пустой чат становится неактивным.
	RemoveParticipant(ctx context.Context, chatID, userID string, at time.Time) error
	SetArchived(ctx context.Context, chatID, userID string, archived bool, at time.Time) error
	// SetLastMessage переписывает указатель; nil сбрасывает его.
	SetLastMessage(ctx context.Context, chatID string, messageID *string, at *time.Time) error
}

// MessageStore: хранилище сообщений.
type MessageStore interface {
	// Create сохраняет сообщение и продвигает указатель последнего сообщения чата.
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// ListByChat: неудалённые сообщения, новые первыми.
	ListByChat(ctx context.Context, chatID string, limit, offset int) ([]model.Message, int, error)
	// Latest возвращает последнее неудалённое сообщение или nil.
	Latest(ctx context.Context, chatID string) (*model.Message, error)
	UpdateContent(ctx context.Context, id, content string, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// MarkRead ставит квитанцию userID на все чужие сообщения чата; возвращает число новых квитанций.
	MarkRead(ctx context.Context, chatID, userID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// UserDirectory: только чтение профилей.
type UserDirectory interface {
	GetProfile(ctx context.Context, id string) (*model.UserProfile, error)
	GetProfiles(ctx context.Context, ids []string) (map[string]model.UserProfile, error)
}
