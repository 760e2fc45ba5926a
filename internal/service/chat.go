package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tamangRajkumar/backend-final-year-project/internal/events"
	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
	"github.com/tamangRajkumar/backend-final-year-project/internal/storage"
)

// Размеры страниц.
const (
	DefaultChatPageSize    = 20
	DefaultMessagePageSize = 50
	MaxPageSize            = 100
	pushBodyLimit          = 120
	pushTimeout            = 10 * time.Second
)

// Pusher доставляет пуш-уведомление пользователю (push.Client).
type Pusher interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Deps: все зависимости сервиса. Events и Push необязательны; Now и NewID подменяются в тестах.
type Deps struct {
	Chats    storage.ChatStore
	Messages storage.MessageStore
	Users    storage.UserDirectory
	Events   events.Publisher
	Push     Pusher
	Now      func() time.Time
	NewID    func() string
}

// ChatService: операции над чатами и сообщениями от имени аутентифицированного пользователя.
type ChatService struct {
	d  Deps
	wg sync.WaitGroup
}

func NewChatService(d Deps) *ChatService {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &ChatService{d: d}
}

// Wait дожидается фоновых отправок пушей (при остановке процесса).
func (s *ChatService) Wait() {
	s.wg.Wait()
}

// SendInput: параметры отправки сообщения.
type SendInput struct {
	SenderID    string
	ChatID      string
	Content     string
	MessageType model.MessageType
	ReplyTo     string
	Attachments []model.Attachment
}

// MessagePage: страница истории. Marked: сколько квитанций поставлено при чтении.
type MessagePage struct {
	Messages   []model.Message
	Pagination model.Pagination
	Marked     int64
}

func normalizePage(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	// (page-1)*limit не должен переполнить int
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

func (s *ChatService) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = s.d.Now()
	if err := s.d.Events.Publish(ctx, e); err != nil {
		logger.Errorf("events: publish %s: %v", e.Type, err)
	}
}

// chatFor загружает чат и проверяет, что userID в нём состоит.
func (s *ChatService) chatFor(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	chat, err := s.d.Chats.GetByID(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound(msgChatNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, forbidden(msgAccessDenied)
	}
	return chat, nil
}

// CreateOrGetChat возвращает direct-чат пользователя с participantID, создавая его при необходимости.
// created=false, если чат уже существовал (в том числе если его создал параллельный запрос).
func (s *ChatService) CreateOrGetChat(ctx context.Context, userID, participantID string) (*model.ChatView, bool, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, false, invalid(msgParticipantRequired)
	}
	if participantID == userID {
		return nil, false, invalid(msgChatWithYourself)
	}
	if _, err := s.d.Users.GetProfile(ctx, participantID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, notFound(msgParticipantNotFound)
		}
		return nil, false, err
	}

	chat, err := s.d.Chats.FindDirect(ctx, userID, participantID)
	created := false
	switch {
	case errors.Is(err, storage.ErrNotFound):
		now := s.d.Now()
		fresh := &model.Chat{
			ID:           s.d.NewID(),
			Participants: []string{userID, participantID},
			ChatType:     model.ChatTypeDirect,
			IsActive:     true,
			ArchivedBy:   []string{},
			CreatedBy:    userID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		chat, err = s.d.Chats.CreateDirect(ctx, fresh)
		if err != nil {
			return nil, false, err
		}
		created = chat.ID == fresh.ID
	case err != nil:
		return nil, false, err
	}

	views, err := s.views(ctx, userID, []model.Chat{*chat})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.publish(ctx, events.Event{Type: events.ChatCreated, ChatID: chat.ID, UserID: userID})
	}
	return &views[0], created, nil
}

// GetChat возвращает один чат участника.
func (s *ChatService) GetChat(ctx context.Context, userID, chatID string) (*model.ChatView, error) {
	chat, err := s.chatFor(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, userID, []model.Chat{*chat})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListChats: активные неархивированные чаты пользователя, свежие первыми.
func (s *ChatService) ListChats(ctx context.Context, userID string, page, limit int) ([]model.ChatView, model.Pagination, error) {
	page, limit = normalizePage(page, limit, DefaultChatPageSize)
	chats, total, err := s.d.Chats.ListForUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	views, err := s.views(ctx, userID, chats)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return views, model.NewPagination(page, limit, total), nil
}

// views собирает ответ: профили участников одним запросом и сверенное последнее сообщение.
func (s *ChatService) views(ctx context.Context, userID string, chats []model.Chat) ([]model.ChatView, error) {
	var ids []string
	seen := make(map[string]bool)
	for i := range chats {
		for _, p := range chats[i].Participants {
			if !seen[p] {
				seen[p] = true
				ids = append(ids, p)
			}
		}
	}
	profiles, err := s.d.Users.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.ChatView, 0, len(chats))
	for i := range chats {
		c := &chats[i]
		v := model.ChatView{
			ID:           c.ID,
			Participants: make([]model.UserProfile, 0, len(c.Participants)),
			ChatType:     c.ChatType,
			IsActive:     c.IsActive,
			IsArchived:   c.IsArchivedBy(userID),
			CreatedBy:    c.CreatedBy,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		}
		for _, p := range c.Participants {
			if prof, ok := profiles[p]; ok {
				v.Participants = append(v.Participants, prof)
			} else {
				v.Participants = append(v.Participants, model.UserProfile{ID: p})
			}
		}
		if last := s.reconcileLast(ctx, c); last != nil {
			last.IsRead = last.ReadByAll(c.Participants)
			if prof, ok := profiles[last.SenderID]; ok {
				last.Sender = &prof
			}
			v.LastMessage = last
			at := last.CreatedAt
			v.LastMessageAt = &at
		}
		out = append(out, v)
	}
	return out, nil
}

// reconcileLast возвращает последнее неудалённое сообщение и чинит указатель чата, если он разошёлся.
// Ошибки только логируются: ответ строится и без последнего сообщения.
func (s *ChatService) reconcileLast(ctx context.Context, c *model.Chat) *model.Message {
	latest, err := s.d.Messages.Latest(ctx, c.ID)
	if err != nil {
		logger.Errorf("chat %s: latest message: %v", c.ID, err)
		return nil
	}
	var wantID *string
	var wantAt *time.Time
	if latest != nil {
		wantID, wantAt = &latest.ID, &latest.CreatedAt
	}
	stale := (wantID == nil) != (c.LastMessageID == nil) ||
		(wantID != nil && *wantID != *c.LastMessageID)
	if stale {
		if err := s.d.Chats.SetLastMessage(ctx, c.ID, wantID, wantAt); err != nil {
			logger.Errorf("chat %s: repair last message: %v", c.ID, err)
		}
	}
	return latest
}

// ListMessages отмечает чужие сообщения прочитанными и возвращает страницу истории в хронологическом порядке.
func (s *ChatService) ListMessages(ctx context.Context, userID, chatID string, page, limit int) (*MessagePage, error) {
	chat, err := s.chatFor(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit, DefaultMessagePageSize)

	marked, err := s.d.Messages.MarkRead(ctx, chatID, userID, s.d.Now())
	if err != nil {
		return nil, err
	}
	if marked > 0 {
		s.publish(ctx, events.Event{Type: events.MessagesRead, ChatID: chatID, UserID: userID, Count: marked})
	}

	msgs, total, err := s.d.Messages.ListByChat(ctx, chatID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if err := s.populate(ctx, chat, msgs); err != nil {
		return nil, err
	}
	return &MessagePage{Messages: msgs, Pagination: model.NewPagination(page, limit, total), Marked: marked}, nil
}

// populate подставляет отправителей, цитируемые сообщения и производный isRead.
func (s *ChatService) populate(ctx context.Context, chat *model.Chat, msgs []model.Message) error {
	replies := make(map[string]*model.Message)
	for i := range msgs {
		id := msgs[i].ReplyToID
		if id == nil || replies[*id] != nil {
			continue
		}
		r, err := s.d.Messages.GetByID(ctx, *id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		replies[*id] = r
	}

	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for i := range msgs {
		add(msgs[i].SenderID)
	}
	for _, r := range replies {
		add(r.SenderID)
	}
	profiles, err := s.d.Users.GetProfiles(ctx, ids)
	if err != nil {
		return err
	}

	for i := range msgs {
		m := &msgs[i]
		if p, ok := profiles[m.SenderID]; ok {
			m.Sender = &p
		}
		if chat != nil {
			m.IsRead = m.ReadByAll(chat.Participants)
		}
		if m.ReplyToID != nil {
			if r, ok := replies[*m.ReplyToID]; ok {
				reply := *r
				reply.ReplyTo = nil
				if p, ok := profiles[reply.SenderID]; ok {
					reply.Sender = &p
				}
				if chat != nil {
					reply.IsRead = reply.ReadByAll(chat.Participants)
				}
				m.ReplyTo = &reply
			}
		}
	}
	return nil
}

func validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid(msgContentRequired)
	}
	if utf8.RuneCountInString(content) > model.MaxContentLength {
		return "", invalid(msgContentTooLong)
	}
	return content, nil
}

// SendMessage сохраняет сообщение, продвигает указатель чата и уведомляет остальных участников пушем.
func (s *ChatService) SendMessage(ctx context.Context, in SendInput) (*model.Message, error) {
	if strings.TrimSpace(in.ChatID) == "" || strings.TrimSpace(in.Content) == "" {
		return nil, invalid(msgChatAndContent)
	}
	content, err := validContent(in.Content)
	if err != nil {
		return nil, err
	}
	if in.MessageType == "" {
		in.MessageType = model.MessageTypeText
	}
	if !in.MessageType.Valid() {
		return nil, invalid(msgInvalidMessageType)
	}
	chat, err := s.chatFor(ctx, in.ChatID, in.SenderID)
	if err != nil {
		return nil, err
	}

	var replyTo *string
	if in.ReplyTo != "" {
		target, err := s.d.Messages.GetByID(ctx, in.ReplyTo)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && target.ChatID != chat.ID) {
			return nil, invalid(msgReplyNotFound)
		}
		if err != nil {
			return nil, err
		}
		replyTo = &target.ID
	}

	attachments := in.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	now := s.d.Now()
	m := &model.Message{
		ID:          s.d.NewID(),
		ChatID:      chat.ID,
		SenderID:    in.SenderID,
		Content:     content,
		MessageType: in.MessageType,
		Attachments: attachments,
		ReadBy:      map[string]time.Time{},
		ReplyToID:   replyTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.d.Messages.Create(ctx, m); err != nil {
		return nil, err
	}

	out := []model.Message{*m}
	if err := s.populate(ctx, chat, out); err != nil {
		return nil, err
	}
	sent := &out[0]
	s.publish(ctx, events.Event{Type: events.MessageCreated, ChatID: chat.ID, MessageID: sent.ID, UserID: in.SenderID, Payload: sent})
	s.notifyOthers(ctx, chat, sent)
	return sent, nil
}

// notifyOthers отправляет пуш остальным участникам в фоне; запрос не ждёт push-сервис.
func (s *ChatService) notifyOthers(ctx context.Context, chat *model.Chat, m *model.Message) {
	if s.d.Push == nil {
		return
	}
	title := "New message"
	if m.Sender != nil {
		title = m.Sender.DisplayName()
	}
	body := m.Content
	if utf8.RuneCountInString(body) > pushBodyLimit {
		body = string([]rune(body)[:pushBodyLimit]) + "…"
	}
	data := map[string]string{"chatId": chat.ID, "messageId": m.ID}
	bg := context.WithoutCancel(ctx)
	for _, uid := range chat.Others(m.SenderID) {
		s.wg.Add(1)
		go func(uid string) {
			defer s.wg.Done()
			pctx, cancel := context.WithTimeout(bg, pushTimeout)
			defer cancel()
			s.d.Push.Notify(pctx, uid, title, body, data)
		}(uid)
	}
}

// GetMessage возвращает сообщение по ID, включая удалённые (isDeleted=true).
func (s *ChatService) GetMessage(ctx context.Context, userID, messageID string) (*model.Message, error) {
	m, err := s.d.Messages.GetByID(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound(msgMessageNotFound)
	}
	if err != nil {
		return nil, err
	}
	chat, err := s.chatFor(ctx, m.ChatID, userID)
	if err != nil {
		return nil, err
	}
	out := []model.Message{*m}
	if err := s.populate(ctx, chat, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

// ownMessage загружает неудалённое сообщение и проверяет авторство.
func (s *ChatService) ownMessage(ctx context.Context, userID, messageID, denyMsg string) (*model.Message, error) {
	m, err := s.d.Messages.GetByID(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound(msgMessageNotFound)
	}
	if err != nil {
		return nil, err
	}
	if m.SenderID != userID {
		return nil, forbidden(denyMsg)
	}
	return m, nil
}

// EditMessage меняет текст своего сообщения. Удалённые сообщения не редактируются.
func (s *ChatService) EditMessage(ctx context.Context, userID, messageID, content string) (*model.Message, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}
	m, err := s.ownMessage(ctx, userID, messageID, msgEditOwnOnly)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, notFound(msgMessageNotFound)
	}
	now := s.d.Now()
	if err := s.d.Messages.UpdateContent(ctx, m.ID, content, now); err != nil {
		return nil, err
	}
	m.Content, m.IsEdited, m.EditedAt, m.UpdatedAt = content, true, &now, now

	var chat *model.Chat
	if c, err := s.d.Chats.GetByID(ctx, m.ChatID); err == nil {
		chat = c
	}
	out := []model.Message{*m}
	if err := s.populate(ctx, chat, out); err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: events.MessageEdited, ChatID: m.ChatID, MessageID: m.ID, UserID: userID})
	return &out[0], nil
}

// DeleteMessage мягко удаляет своё сообщение. Повторное удаление не ошибка, но changed=false.
// Указатель последнего сообщения чата не трогается: его чинит сверка при чтении.
func (s *ChatService) DeleteMessage(ctx context.Context, userID, messageID string) (*model.Message, bool, error) {
	m, err := s.ownMessage(ctx, userID, messageID, msgDeleteOwnOnly)
	if err != nil {
		return nil, false, err
	}
	if m.IsDeleted {
		return m, false, nil
	}
	now := s.d.Now()
	if err := s.d.Messages.SoftDelete(ctx, m.ID, now); err != nil {
		return nil, false, err
	}
	m.IsDeleted, m.DeletedAt, m.UpdatedAt = true, &now, now
	s.publish(ctx, events.Event{Type: events.MessageDeleted, ChatID: m.ChatID, MessageID: m.ID, UserID: userID})
	return m, true, nil
}

// MarkRead ставит квитанции пользователя на все чужие сообщения чата; возвращает число новых.
func (s *ChatService) MarkRead(ctx context.Context, userID, chatID string) (int64, error) {
	if _, err := s.chatFor(ctx, chatID, userID); err != nil {
		return 0, err
	}
	n, err := s.d.Messages.MarkRead(ctx, chatID, userID, s.d.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(ctx, events.Event{Type: events.MessagesRead, ChatID: chatID, UserID: userID, Count: n})
	}
	return n, nil
}

// UnreadCount: число непрочитанных чужих неудалённых сообщений во всех чатах пользователя.
func (s *ChatService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.d.Messages.CountUnread(ctx, userID)
}

// LeaveChat убирает пользователя из участников (и из archivedBy). Пустой чат становится неактивным.
func (s *ChatService) LeaveChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.chatFor(ctx, chatID, userID); err != nil {
		return err
	}
	return s.d.Chats.RemoveParticipant(ctx, chatID, userID, s.d.Now())
}

// ArchiveChat скрывает чат из списка пользователя.
func (s *ChatService) ArchiveChat(ctx context.Context, userID, chatID string) error {
	return s.setArchived(ctx, userID, chatID, true)
}

// UnarchiveChat возвращает чат в список.
func (s *ChatService) UnarchiveChat(ctx context.Context, userID, chatID string) error {
	return s.setArchived(ctx, userID, chatID, false)
}

func (s *ChatService) setArchived(ctx context.Context, userID, chatID string, archived bool) error {
	if _, err := s.chatFor(ctx, chatID, userID); err != nil {
		return err
	}
	return s.d.Chats.SetArchived(ctx, chatID, userID, archived, s.d.Now())
}

// IsParticipant нужен realtime-слою для проверки join_chat.
func (s *ChatService) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	return s.d.Chats.IsParticipant(ctx, chatID, userID)
}

// Profile возвращает профиль для событий realtime-слоя.
func (s *ChatService) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	return s.d.Users.GetProfile(ctx, userID)
}
