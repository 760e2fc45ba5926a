// Package memory: хранилище в памяти процесса для тестов и запуска с -store=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
	"github.com/tamangRajkumar/backend-final-year-project/internal/storage"
)

// Store реализует storage.ChatStore, storage.MessageStore и storage.UserDirectory.
// Наружу отдаются только копии.
type Store struct {
	mu       sync.RWMutex
	users    map[string]model.UserProfile
	chats    map[string]*model.Chat
	messages map[string]*model.Message
	// порядок вставки сообщений по чату
	byChat map[string][]string
}

func New() *Store {
	return &Store{
		users:    make(map[string]model.UserProfile),
		chats:    make(map[string]*model.Chat),
		messages: make(map[string]*model.Message),
		byChat:   make(map[string][]string),
	}
}

func (s *Store) Close() error { return nil }

// Chats и Messages возвращают тот же Store под узким интерфейсом.
func (s *Store) Chats() storage.ChatStore       { return chatView{s} }
func (s *Store) Messages() storage.MessageStore { return messageView{s} }

// AddUser заводит профиль в каталоге.
func (s *Store) AddUser(u model.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetProfiles(ctx context.Context, ids []string) (map[string]model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.UserProfile, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// chatView и messageView разводят одноимённые методы двух интерфейсов (GetByID).
type chatView struct{ s *Store }
type messageView struct{ s *Store }

func copyChat(c *model.Chat) *model.Chat {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.ArchivedBy = append([]string(nil), c.ArchivedBy...)
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		out.LastMessageID = &id
	}
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		out.LastMessageAt = &at
	}
	return &out
}

func copyMessage(m *model.Message) *model.Message {
	out := *m
	out.Attachments = append([]model.Attachment(nil), m.Attachments...)
	out.ReadBy = make(map[string]time.Time, len(m.ReadBy))
	for k, v := range m.ReadBy {
		out.ReadBy[k] = v
	}
	return &out
}

func (v chatView) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	c, ok := v.s.chats[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyChat(c), nil
}

func (v chatView) FindDirect(ctx context.Context, a, b string) (*model.Chat, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if c := v.s.findDirectLocked(a, b); c != nil {
		return copyChat(c), nil
	}
	return nil, storage.ErrNotFound
}

func (s *Store) findDirectLocked(a, b string) *model.Chat {
	var found *model.Chat
	for _, c := range s.chats {
		if c.ChatType != model.ChatTypeDirect || !c.HasParticipant(a) || !c.HasParticipant(b) {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = c
		}
	}
	return found
}

func (v chatView) CreateDirect(ctx context.Context, c *model.Chat) (*model.Chat, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if len(c.Participants) == 2 {
		if existing := v.s.findDirectLocked(c.Participants[0], c.Participants[1]); existing != nil {
			return copyChat(existing), nil
		}
	}
	v.s.chats[c.ID] = copyChat(c)
	return copyChat(c), nil
}

func (v chatView) ListForUser(ctx context.Context, userID string, limit, offset int) ([]model.Chat, int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var list []*model.Chat
	for _, c := range v.s.chats {
		if c.IsActive && c.HasParticipant(userID) && !c.IsArchivedBy(userID) {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.LastMessageAt != nil && b.LastMessageAt == nil:
			return true
		case a.LastMessageAt == nil && b.LastMessageAt != nil:
			return false
		case a.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt):
			return a.LastMessageAt.After(*b.LastMessageAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	total := len(list)
	out := make([]model.Chat, 0, limit)
	for i := offset; i < total && len(out) < limit; i++ {
		out = append(out, *copyChat(list[i]))
	}
	return out, total, nil
}

func (v chatView) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	c, ok := v.s.chats[chatID]
	if !ok {
		return false, nil
	}
	return c.HasParticipant(userID), nil
}

func without(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func (v chatView) RemoveParticipant(ctx context.Context, chatID, userID string, at time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.chats[chatID]
	if !ok {
		return storage.ErrNotFound
	}
	c.Participants = without(c.Participants, userID)
	c.ArchivedBy = without(c.ArchivedBy, userID)
	if len(c.Participants) == 0 {
		c.IsActive = false
	}
	c.UpdatedAt = at
	return nil
}

func (v chatView) SetArchived(ctx context.Context, chatID, userID string, archived bool, at time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.chats[chatID]
	if !ok {
		return storage.ErrNotFound
	}
	if archived && !c.IsArchivedBy(userID) {
		c.ArchivedBy = append(c.ArchivedBy, userID)
	} else if !archived {
		c.ArchivedBy = without(c.ArchivedBy, userID)
	}
	c.UpdatedAt = at
	return nil
}

func (v chatView) SetLastMessage(ctx context.Context, chatID string, messageID *string, at *time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.chats[chatID]
	if !ok {
		return storage.ErrNotFound
	}
	c.LastMessageID, c.LastMessageAt = nil, nil
	if messageID != nil {
		id := *messageID
		c.LastMessageID = &id
	}
	if at != nil {
		t := *at
		c.LastMessageAt = &t
	}
	return nil
}

func (v messageView) Create(ctx context.Context, m *model.Message) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.chats[m.ChatID]
	if !ok {
		return storage.ErrNotFound
	}
	cp := copyMessage(m)
	v.s.messages[m.ID] = cp
	v.s.byChat[m.ChatID] = append(v.s.byChat[m.ChatID], m.ID)
	id, at := m.ID, m.CreatedAt
	c.LastMessageID, c.LastMessageAt = &id, &at
	c.UpdatedAt = at
	return nil
}

func (v messageView) GetByID(ctx context.Context, id string) (*model.Message, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	m, ok := v.s.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyMessage(m), nil
}

// liveLocked: неудалённые сообщения чата, новые первыми.
func (s *Store) liveLocked(chatID string) []*model.Message {
	ids := s.byChat[chatID]
	out := make([]*model.Message, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if m := s.messages[ids[i]]; !m.IsDeleted {
			out = append(out, m)
		}
	}
	return out
}

func (v messageView) ListByChat(ctx context.Context, chatID string, limit, offset int) ([]model.Message, int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	live := v.s.liveLocked(chatID)
	out := make([]model.Message, 0, limit)
	for i := offset; i < len(live) && len(out) < limit; i++ {
		out = append(out, *copyMessage(live[i]))
	}
	return out, len(live), nil
}

func (v messageView) Latest(ctx context.Context, chatID string) (*model.Message, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	live := v.s.liveLocked(chatID)
	if len(live) == 0 {
		return nil, nil
	}
	return copyMessage(live[0]), nil
}

func (v messageView) UpdateContent(ctx context.Context, id, content string, at time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	m, ok := v.s.messages[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Content = content
	m.IsEdited = true
	m.EditedAt = &at
	m.UpdatedAt = at
	return nil
}

func (v messageView) SoftDelete(ctx context.Context, id string, at time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	m, ok := v.s.messages[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !m.IsDeleted {
		m.IsDeleted = true
		m.DeletedAt = &at
		m.UpdatedAt = at
	}
	return nil
}

func (v messageView) MarkRead(ctx context.Context, chatID, userID string, at time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, id := range v.s.byChat[chatID] {
		m := v.s.messages[id]
		if m.SenderID == userID {
			continue
		}
		if _, ok := m.ReadBy[userID]; ok {
			continue
		}
		if m.ReadBy == nil {
			m.ReadBy = make(map[string]time.Time)
		}
		m.ReadBy[userID] = at
		n++
	}
	return n, nil
}

func (v messageView) CountUnread(ctx context.Context, userID string) (int64, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var n int64
	for chatID, c := range v.s.chats {
		if !c.HasParticipant(userID) {
			continue
		}
		for _, id := range v.s.byChat[chatID] {
			m := v.s.messages[id]
			if m.IsDeleted || m.SenderID == userID {
				continue
			}
			if _, ok := m.ReadBy[userID]; !ok {
				n++
			}
		}
	}
	return n, nil
}
