package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
)

// Access: проверки, которые хабу нужны от сервиса чатов.
type Access interface {
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	Profile(ctx context.Context, userID string) (*model.UserProfile, error)
}

// Options: параметры соединений (из config.WSConfig).
type Options struct {
	MaxConnections  int
	SendBufferSize  int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	MaxMessageSize  int64
	EventsPerSecond int
}

func (o Options) withDefaults() Options {
	if o.MaxConnections <= 0 {
		o.MaxConnections = 10000
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

// Hub держит локальные соединения: по пользователю (личный канал) и по комнатам чатов.
// Рассылка идёт через Broker, если он задан; иначе только внутри процесса.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	total      int
	opts       Options
	access     Access
	broker     Broker
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(access Access, broker Broker, opts Options) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		opts:       opts.withDefaults(),
		access:     access,
		broker:     broker,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

// ConnectionCount: число локальных соединений.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	// readPump мог завершиться раньше, чем дошла регистрация: Unregister уже обработан впустую
	select {
	case <-c.done:
		h.mu.Unlock()
		logger.Debugf("ws skip closed conn user=%s conn=%s", c.userID, c.id)
		return
	default:
	}
	if h.total >= h.opts.MaxConnections {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.opts.MaxConnections, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	logger.Debugf("ws connected user=%s conn=%s", c.userID, c.id)
}

// removeClient отключает соединение от личного канала и всех комнат.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	for chatID := range c.rooms {
		h.leaveLocked(c, chatID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
	logger.Debugf("ws disconnected user=%s conn=%s", c.userID, c.id)
}

func (h *Hub) join(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][c] = struct{}{}
	c.rooms[chatID] = struct{}{}
}

func (h *Hub) leave(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, chatID)
}

func (h *Hub) leaveLocked(c *Client, chatID string) {
	delete(c.rooms, chatID)
	room, ok := h.rooms[chatID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, chatID)
	}
}

// evict убирает все локальные соединения пользователя из комнаты.
func (h *Hub) evict(userID, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		h.leaveLocked(c, chatID)
	}
}

func (h *Hub) inRoom(c *Client, chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[chatID]
	return ok
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	if c.limiter != nil && !c.limiter.Allow() {
		h.reply(c, errorMessage(errTooManyEvents))
		return
	}
	switch msg.Type {
	case EventJoinChat:
		h.handleJoin(ctx, c, msg)
	case EventLeaveChat:
		if msg.ChatID != "" {
			h.leave(c, msg.ChatID)
		}
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg)
	case EventTypingStart:
		h.handleTyping(ctx, c, msg, true)
	case EventTypingStop:
		h.handleTyping(ctx, c, msg, false)
	case EventMarkAsRead:
		h.handleMarkAsRead(ctx, c, msg)
	default:
		h.reply(c, errorMessage(errUnknownEvent))
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ChatID == "" {
		h.reply(c, errorMessage(errChatIDRequired))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok, err := h.access.IsParticipant(ctx, msg.ChatID, c.userID)
	if err != nil {
		logger.Errorf("ws check participant chat=%s user=%s: %v", msg.ChatID, c.userID, err)
	}
	if !ok {
		h.reply(c, errorMessage(errAccessDenied))
		return
	}
	h.join(c, msg.ChatID)
}

// handleSendMessage: relay без сохранения, сообщение уходит остальным соединениям комнаты,
// отправитель получает message_sent.
func (h *Hub) handleSendMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	content := strings.TrimSpace(msg.Content)
	if msg.ChatID == "" || (content == "" && len(msg.Attachments) == 0) || !h.inRoom(c, msg.ChatID) {
		h.reply(c, errorMessage(errSendFailed))
		return
	}
	messageType := msg.MessageType
	if messageType == "" {
		messageType = model.MessageTypeText
	}
	if !messageType.Valid() {
		h.reply(c, errorMessage(errSendFailed))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// участие могло закончиться после join_chat
	member, err := h.access.IsParticipant(ctx, msg.ChatID, c.userID)
	if err != nil {
		logger.Errorf("ws check participant chat=%s user=%s: %v", msg.ChatID, c.userID, err)
		h.reply(c, errorMessage(errSendFailed))
		return
	}
	if !member {
		h.leave(c, msg.ChatID)
		h.reply(c, errorMessage(errAccessDenied))
		return
	}
	sender, err := h.access.Profile(ctx, c.userID)
	if err != nil {
		logger.Errorf("ws get sender user=%s: %v", c.userID, err)
		h.reply(c, errorMessage(errSendFailed))
		return
	}

	attachments := msg.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	payload := ChatMessagePayload{
		ChatID:      msg.ChatID,
		MessageID:   msg.MessageID,
		Content:     content,
		MessageType: messageType,
		ReplyTo:     msg.ReplyTo,
		Attachments: attachments,
		Sender:      sender,
		Timestamp:   time.Now().UTC(),
	}
	h.publish(ctx, kindRoom, msg.ChatID, c.id, OutgoingMessage{Type: EventNewMessage, Payload: payload})
	h.reply(c, OutgoingMessage{Type: EventMessageSent, Payload: payload})
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, msg IncomingMessage, start bool) {
	if msg.ChatID == "" || !h.inRoom(c, msg.ChatID) {
		return
	}
	out := OutgoingMessage{Type: EventUserStoppedTyping, Payload: TypingPayload{ChatID: msg.ChatID, UserID: c.userID}}
	if start {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		p := TypingPayload{ChatID: msg.ChatID, UserID: c.userID}
		if user, err := h.access.Profile(ctx, c.userID); err == nil {
			p.User = user
		} else {
			logger.Errorf("ws typing profile user=%s: %v", c.userID, err)
		}
		out = OutgoingMessage{Type: EventUserTyping, Payload: p}
	}
	h.publish(ctx, kindRoom, msg.ChatID, c.id, out)
}

// handleMarkAsRead только оповещает комнату; квитанции сохраняет REST.
func (h *Hub) handleMarkAsRead(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ChatID == "" || !h.inRoom(c, msg.ChatID) {
		return
	}
	h.publish(ctx, kindRoom, msg.ChatID, c.id, OutgoingMessage{
		Type:    EventMessageRead,
		Payload: MessageReadPayload{ChatID: msg.ChatID, UserID: c.userID, MessageID: msg.MessageID},
	})
}

// BroadcastToChat sends a message to every connection that joined the chat room.
func (h *Hub) BroadcastToChat(ctx context.Context, chatID string, msg OutgoingMessage) {
	defer logger.DeferLogDuration("ws.BroadcastToChat", time.Now())()
	h.publish(ctx, kindRoom, chatID, "", msg)
}

// RemoveFromRoom отключает соединения userID от комнаты chatID во всех процессах (выход из чата).
func (h *Hub) RemoveFromRoom(ctx context.Context, userID, chatID string) {
	env := Envelope{Kind: kindEvict, Target: chatID, User: userID}
	if h.broker != nil {
		err := h.broker.Publish(ctx, env)
		if err == nil {
			return
		}
		logger.Errorf("ws broker publish evict %s: %v (applying locally)", chatID, err)
	}
	h.deliver(env)
}

// SendToUser отправляет событие во все соединения пользователя.
func (h *Hub) SendToUser(ctx context.Context, userID string, msg OutgoingMessage) {
	h.publish(ctx, kindUser, userID, "", msg)
}

// publish кодирует кадр один раз и отдаёт брокеру; при ошибке брокера доставляет локально.
func (h *Hub) publish(ctx context.Context, kind, target, exclude string, msg OutgoingMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("ws marshal %s: %v", msg.Type, err)
		return
	}
	env := Envelope{Kind: kind, Target: target, Exclude: exclude, Frame: frame}
	if h.broker != nil {
		err := h.broker.Publish(ctx, env)
		if err == nil {
			return
		}
		logger.Errorf("ws broker publish %s %s: %v (delivering locally)", kind, target, err)
	}
	h.deliver(env)
}

// deliver рассылает кадр локальным соединениям адресата.
func (h *Hub) deliver(env Envelope) {
	if env.Kind == kindEvict {
		h.evict(env.User, env.Target)
		return
	}
	h.mu.RLock()
	var set map[*Client]struct{}
	switch env.Kind {
	case kindRoom:
		set = h.rooms[env.Target]
	case kindUser:
		set = h.clients[env.Target]
	}
	targets := make([]*Client, 0, len(set))
	for c := range set {
		if c.id != env.Exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, env.Frame)
	}
}

func (h *Hub) sendToClient(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

// reply отправляет событие только этому соединению.
func (h *Hub) reply(c *Client, msg OutgoingMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("ws marshal %s: %v", msg.Type, err)
		return
	}
	h.sendToClient(c, frame)
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
