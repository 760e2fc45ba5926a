package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
	"github.com/tamangRajkumar/backend-final-year-project/internal/storage"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, pairKey("a", "b"), pairKey("b", "a"))
	assert.NotEqual(t, pairKey("a", "b"), pairKey("a", "c"))
}

// openTestStore подключается к MONGO_TEST_URI; без переменной тест пропускается.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("chat_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	s := New(db)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestStoreAgainstServer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	chats, msgs := s.Chats(), s.Messages()

	c := &model.Chat{ID: uuid.NewString(), Participants: []string{"a", "b"}, ChatType: model.ChatTypeDirect, IsActive: true, CreatedBy: "a", CreatedAt: now, UpdatedAt: now}
	created, err := chats.CreateDirect(ctx, c)
	require.NoError(t, err)

	dup := *c
	dup.ID = uuid.NewString()
	dup.Participants = []string{"b", "a"}
	again, err := chats.CreateDirect(ctx, &dup)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	m := &model.Message{ID: uuid.NewString(), ChatID: c.ID, SenderID: "b", Content: "hi", MessageType: model.MessageTypeText, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, msgs.Create(ctx, m))

	unread, err := msgs.CountUnread(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	n, err := msgs.MarkRead(ctx, c.ID, "a", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Contains(t, got.ReadBy, "a")

	require.NoError(t, chats.SetArchived(ctx, c.ID, "a", true, now))
	list, total, err := chats.ListForUser(ctx, "a", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	require.NoError(t, chats.RemoveParticipant(ctx, c.ID, "a", now))
	after, err := chats.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, after.Participants)
	assert.Empty(t, after.ArchivedBy)

	_, err = chats.FindDirect(ctx, "a", "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
