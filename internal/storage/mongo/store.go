// Package mongo: документное хранилище чатов (STORE_DRIVER=mongo).
// Коллекции chats, messages и users повторяют исходную раскладку документов; readBy: вложенная карта.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
	"github.com/tamangRajkumar/backend-final-year-project/internal/storage"
)

// chatDoc добавляет к чату ключ пары; уникальный индекс по нему не даёт создать второй direct-чат.
// Ключ снимается, когда кто-то из пары выходит из чата.
type chatDoc struct {
	model.Chat `bson:",inline"`
	DirectKey  string `bson:"directKey,omitempty"`
}

type Store struct {
	chats    *mongo.Collection
	messages *mongo.Collection
	users    *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		chats:    db.Collection("chats"),
		messages: db.Collection("messages"),
		users:    db.Collection("users"),
	}
}

// Chats и Messages возвращают тот же Store под узким интерфейсом.
func (s *Store) Chats() storage.ChatStore       { return chatStore{s} }
func (s *Store) Messages() storage.MessageStore { return messageStore{s} }

// EnsureIndexes создаёт индексы; вызывается при старте.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	defer logger.DeferLogDuration("mongo.EnsureIndexes", time.Now())()
	if _, err := s.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "lastMessageAt", Value: -1}}, Options: options.Index().SetName("participants_last")},
		{Keys: bson.D{{Key: "directKey", Value: 1}}, Options: options.Index().SetName("direct_key").SetUnique(true).
			SetPartialFilterExpression(bson.M{"directKey": bson.M{"$exists": true}})},
	}); err != nil {
		return fmt.Errorf("mongo chats indexes: %w", err)
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("chat_created")},
		{Keys: bson.D{{Key: "sender", Value: 1}}, Options: options.Index().SetName("sender")},
	}); err != nil {
		return fmt.Errorf("mongo messages indexes: %w", err)
	}
	return nil
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

type chatStore struct{ s *Store }
type messageStore struct{ s *Store }

func (c chatStore) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("mongo.chat.GetByID", time.Now())()
	var doc chatDoc
	if err := c.s.chats.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mongo.chat.GetByID: %w", err)
	}
	return &doc.Chat, nil
}

func (c chatStore) FindDirect(ctx context.Context, a, b string) (*model.Chat, error) {
	defer logger.DeferLogDuration("mongo.chat.FindDirect", time.Now())()
	var doc chatDoc
	err := c.s.chats.FindOne(ctx,
		bson.M{"chatType": model.ChatTypeDirect, "participants": bson.M{"$all": []string{a, b}}},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo.chat.FindDirect: %w", err)
	}
	return &doc.Chat, nil
}

func (c chatStore) CreateDirect(ctx context.Context, chat *model.Chat) (*model.Chat, error) {
	defer logger.DeferLogDuration("mongo.chat.CreateDirect", time.Now())()
	if len(chat.Participants) != 2 {
		return nil, fmt.Errorf("mongo.chat.CreateDirect: direct chat needs 2 participants, got %d", len(chat.Participants))
	}
	doc := chatDoc{Chat: *chat, DirectKey: pairKey(chat.Participants[0], chat.Participants[1])}
	if doc.ArchivedBy == nil {
		doc.ArchivedBy = []string{}
	}
	_, err := c.s.chats.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return c.FindDirect(ctx, chat.Participants[0], chat.Participants[1])
	}
	if err != nil {
		return nil, fmt.Errorf("mongo.chat.CreateDirect: %w", err)
	}
	out := doc.Chat
	return &out, nil
}

func (c chatStore) ListForUser(ctx context.Context, userID string, limit, offset int) ([]model.Chat, int, error) {
	defer logger.DeferLogDuration("mongo.chat.ListForUser", time.Now())()
	filter := bson.M{"participants": userID, "isActive": true, "archivedBy": bson.M{"$ne": userID}}
	total, err := c.s.chats.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("mongo.chat.ListForUser count: %w", err)
	}
	// отсутствующий lastMessageAt при сортировке по убыванию оказывается в конце
	cur, err := c.s.chats.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "lastMessageAt", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("mongo.chat.ListForUser find: %w", err)
	}
	defer cur.Close(ctx)

	chats := make([]model.Chat, 0, limit)
	for cur.Next(ctx) {
		var doc chatDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("mongo.chat.ListForUser decode: %w", err)
		}
		chats = append(chats, doc.Chat)
	}
	if err := cur.Err(); err != nil {
		return nil, 0, fmt.Errorf("mongo.chat.ListForUser cursor: %w", err)
	}
	return chats, int(total), nil
}

func (c chatStore) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	defer logger.DeferLogDuration("mongo.chat.IsParticipant", time.Now())()
	n, err := c.s.chats.CountDocuments(ctx, bson.M{"_id": chatID, "participants": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongo.chat.IsParticipant: %w", err)
	}
	return n > 0, nil
}

func (c chatStore) RemoveParticipant(ctx context.Context, chatID, userID string, at time.Time) error {
	defer logger.DeferLogDuration("mongo.chat.RemoveParticipant", time.Now())()
	res, err := c.s.chats.UpdateByID(ctx, chatID, bson.M{
		"$pull":  bson.M{"participants": userID, "archivedBy": userID},
		"$set":   bson.M{"updatedAt": at},
		"$unset": bson.M{"directKey": ""},
	})
	if err != nil {
		return fmt.Errorf("mongo.chat.RemoveParticipant: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	if _, err := c.s.chats.UpdateOne(ctx,
		bson.M{"_id": chatID, "participants": bson.M{"$size": 0}},
		bson.M{"$set": bson.M{"isActive": false}},
	); err != nil {
		return fmt.Errorf("mongo.chat.RemoveParticipant deactivate: %w", err)
	}
	return nil
}

func (c chatStore) SetArchived(ctx context.Context, chatID, userID string, archived bool, at time.Time) error {
	defer logger.DeferLogDuration("mongo.chat.SetArchived", time.Now())()
	op := "$pull"
	if archived {
		op = "$addToSet"
	}
	res, err := c.s.chats.UpdateByID(ctx, chatID, bson.M{
		op:     bson.M{"archivedBy": userID},
		"$set": bson.M{"updatedAt": at},
	})
	if err != nil {
		return fmt.Errorf("mongo.chat.SetArchived: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c chatStore) SetLastMessage(ctx context.Context, chatID string, messageID *string, at *time.Time) error {
	defer logger.DeferLogDuration("mongo.chat.SetLastMessage", time.Now())()
	update := bson.M{"$unset": bson.M{"lastMessage": "", "lastMessageAt": ""}}
	if messageID != nil && at != nil {
		update = bson.M{"$set": bson.M{"lastMessage": *messageID, "lastMessageAt": *at}}
	}
	res, err := c.s.chats.UpdateByID(ctx, chatID, update)
	if err != nil {
		return fmt.Errorf("mongo.chat.SetLastMessage: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Create пишет сообщение и затем указатель чата; двух документов атомарно без транзакции реплики не обновить,
// а расхождение указателя исправляет сверка при чтении.
func (m messageStore) Create(ctx context.Context, msg *model.Message) error {
	defer logger.DeferLogDuration("mongo.msg.Create", time.Now())()
	doc := *msg
	if doc.ReadBy == nil {
		doc.ReadBy = map[string]time.Time{}
	}
	if doc.Attachments == nil {
		doc.Attachments = []model.Attachment{}
	}
	if _, err := m.s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo.msg.Create: %w", err)
	}
	res, err := m.s.chats.UpdateByID(ctx, msg.ChatID, bson.M{"$set": bson.M{
		"lastMessage": msg.ID, "lastMessageAt": msg.CreatedAt, "updatedAt": msg.CreatedAt,
	}})
	if err != nil {
		return fmt.Errorf("mongo.msg.Create pointer: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (m messageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("mongo.msg.GetByID", time.Now())()
	var msg model.Message
	if err := m.s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mongo.msg.GetByID: %w", err)
	}
	return &msg, nil
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

func (m messageStore) ListByChat(ctx context.Context, chatID string, limit, offset int) ([]model.Message, int, error) {
	defer logger.DeferLogDuration("mongo.msg.ListByChat", time.Now())()
	filter := bson.M{"chat": chatID, "isDeleted": false}
	total, err := m.s.messages.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("mongo.msg.ListByChat count: %w", err)
	}
	cur, err := m.s.messages.Find(ctx, filter, options.Find().SetSort(newestFirst).SetSkip(int64(offset)).SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("mongo.msg.ListByChat find: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]model.Message, 0, limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("mongo.msg.ListByChat decode: %w", err)
	}
	return out, int(total), nil
}

func (m messageStore) Latest(ctx context.Context, chatID string) (*model.Message, error) {
	defer logger.DeferLogDuration("mongo.msg.Latest", time.Now())()
	var msg model.Message
	err := m.s.messages.FindOne(ctx, bson.M{"chat": chatID, "isDeleted": false}, options.FindOne().SetSort(newestFirst)).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo.msg.Latest: %w", err)
	}
	return &msg, nil
}

func (m messageStore) UpdateContent(ctx context.Context, id, content string, at time.Time) error {
	defer logger.DeferLogDuration("mongo.msg.UpdateContent", time.Now())()
	res, err := m.s.messages.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"content": content, "isEdited": true, "editedAt": at, "updatedAt": at,
	}})
	if err != nil {
		return fmt.Errorf("mongo.msg.UpdateContent: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (m messageStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	defer logger.DeferLogDuration("mongo.msg.SoftDelete", time.Now())()
	res, err := m.s.messages.UpdateOne(ctx, bson.M{"_id": id, "isDeleted": false}, bson.M{"$set": bson.M{
		"isDeleted": true, "deletedAt": at, "updatedAt": at,
	}})
	if err != nil {
		return fmt.Errorf("mongo.msg.SoftDelete: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	// уже удалено или не существует
	n, err := m.s.messages.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("mongo.msg.SoftDelete exists: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (m messageStore) MarkRead(ctx context.Context, chatID, userID string, at time.Time) (int64, error) {
	defer logger.DeferLogDuration("mongo.msg.MarkRead", time.Now())()
	field := "readBy." + userID
	res, err := m.s.messages.UpdateMany(ctx,
		bson.M{"chat": chatID, "sender": bson.M{"$ne": userID}, field: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{field: at}},
	)
	if err != nil {
		return 0, fmt.Errorf("mongo.msg.MarkRead: %w", err)
	}
	return res.ModifiedCount, nil
}

func (m messageStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	defer logger.DeferLogDuration("mongo.msg.CountUnread", time.Now())()
	chatIDs, err := m.s.chats.Distinct(ctx, "_id", bson.M{"participants": userID})
	if err != nil {
		return 0, fmt.Errorf("mongo.msg.CountUnread chats: %w", err)
	}
	if len(chatIDs) == 0 {
		return 0, nil
	}
	n, err := m.s.messages.CountDocuments(ctx, bson.M{
		"chat":             bson.M{"$in": chatIDs},
		"sender":           bson.M{"$ne": userID},
		"isDeleted":        false,
		"readBy." + userID: bson.M{"$exists": false},
	})
	if err != nil {
		return 0, fmt.Errorf("mongo.msg.CountUnread: %w", err)
	}
	return n, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	defer logger.DeferLogDuration("mongo.user.GetProfile", time.Now())()
	var u model.UserProfile
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mongo.user.GetProfile: %w", err)
	}
	return &u, nil
}

func (s *Store) GetProfiles(ctx context.Context, ids []string) (map[string]model.UserProfile, error) {
	defer logger.DeferLogDuration("mongo.user.GetProfiles", time.Now())()
	out := make(map[string]model.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("mongo.user.GetProfiles: %w", err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var u model.UserProfile
		if err := cur.Decode(&u); err != nil {
			return nil, fmt.Errorf("mongo.user.GetProfiles decode: %w", err)
		}
		out[u.ID] = u
	}
	return out, cur.Err()
}
