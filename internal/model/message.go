package model

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether t is one of the accepted message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// MaxContentLength is measured in characters, not bytes.
const MaxContentLength = 1000

type Attachment struct {
	URL      string `json:"url" bson:"url"`
	PublicID string `json:"publicId,omitempty" bson:"publicId,omitempty"`
	Filename string `json:"filename,omitempty" bson:"filename,omitempty"`
	FileType string `json:"fileType,omitempty" bson:"fileType,omitempty"`
	FileSize int64  `json:"fileSize,omitempty" bson:"fileSize,omitempty"`
}

type Message struct {
	ID          string               `json:"id" bson:"_id"`
	ChatID      string               `json:"chat" bson:"chat"`
	SenderID    string               `json:"senderId" bson:"sender"`
	Content     string               `json:"content" bson:"content"`
	MessageType MessageType          `json:"messageType" bson:"messageType"`
	Attachments []Attachment         `json:"attachments" bson:"attachments"`
	ReadBy      map[string]time.Time `json:"readBy" bson:"readBy"`
	IsRead      bool                 `json:"isRead" bson:"-"`
	IsEdited    bool                 `json:"isEdited" bson:"isEdited"`
	EditedAt    *time.Time           `json:"editedAt,omitempty" bson:"editedAt,omitempty"`
	IsDeleted   bool                 `json:"isDeleted" bson:"isDeleted"`
	DeletedAt   *time.Time           `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
	ReplyToID   *string              `json:"replyToId,omitempty" bson:"replyTo,omitempty"`
	CreatedAt   time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt" bson:"updatedAt"`

	Sender  *UserProfile `json:"sender,omitempty" bson:"-"`
	ReplyTo *Message     `json:"replyTo,omitempty" bson:"-"`
}

// ReadByAll считает сообщение прочитанным, когда квитанция есть у каждого участника, кроме отправителя.
func (m *Message) ReadByAll(participants []string) bool {
	others := 0
	for _, p := range participants {
		if p == m.SenderID {
			continue
		}
		others++
		if _, ok := m.ReadBy[p]; !ok {
			return false
		}
	}
	return others > 0
}
