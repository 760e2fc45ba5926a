package model

import "time"

type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

// Chat: сохранённый агрегат беседы. LastMessageID: денормализованный указатель,
// который сверяется с последним неудалённым сообщением при чтении.
type Chat struct {
	ID            string     `json:"id" bson:"_id"`
	Participants  []string   `json:"participants" bson:"participants"`
	ChatType      ChatType   `json:"chatType" bson:"chatType"`
	LastMessageID *string    `json:"lastMessage,omitempty" bson:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty" bson:"lastMessageAt,omitempty"`
	IsActive      bool       `json:"isActive" bson:"isActive"`
	ArchivedBy    []string   `json:"archivedBy" bson:"archivedBy"`
	CreatedBy     string     `json:"createdBy" bson:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// HasParticipant сообщает, входит ли userID в участники.
func (c *Chat) HasParticipant(userID string) bool {
	return contains(c.Participants, userID)
}

// IsArchivedBy сообщает, скрыт ли чат пользователем.
func (c *Chat) IsArchivedBy(userID string) bool {
	return contains(c.ArchivedBy, userID)
}

// Others возвращает участников, кроме userID.
func (c *Chat) Others(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// ChatView: чат в ответе API, участники с профилями и актуальное последнее сообщение.
type ChatView struct {
	ID            string        `json:"id"`
	Participants  []UserProfile `json:"participants"`
	ChatType      ChatType      `json:"chatType"`
	LastMessage   *Message      `json:"lastMessage"`
	LastMessageAt *time.Time    `json:"lastMessageAt"`
	IsActive      bool          `json:"isActive"`
	IsArchived    bool          `json:"isArchived"`
	CreatedBy     string        `json:"createdBy"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
