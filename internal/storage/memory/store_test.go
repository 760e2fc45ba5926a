package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
	"github.com/tamangRajkumar/backend-final-year-project/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func direct(id, a, b string, at time.Time) *model.Chat {
	return &model.Chat{ID: id, Participants: []string{a, b}, ChatType: model.ChatTypeDirect, IsActive: true, CreatedBy: a, CreatedAt: at, UpdatedAt: at}
}

func msg(id, chat, sender string, at time.Time) *model.Message {
	return &model.Message{ID: id, ChatID: chat, SenderID: sender, Content: "hi " + id, MessageType: model.MessageTypeText, ReadBy: map[string]time.Time{}, CreatedAt: at, UpdatedAt: at}
}

func TestCreateDirectReturnsExisting(t *testing.T) {
	ctx := context.Background()
	s := New()
	chats := s.Chats()

	first, err := chats.CreateDirect(ctx, direct("c1", "a", "b", t0))
	require.NoError(t, err)
	assert.Equal(t, "c1", first.ID)

	second, err := chats.CreateDirect(ctx, direct("c2", "b", "a", t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, "c1", second.ID)

	found, err := chats.FindDirect(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "c1", found.ID)

	_, err = chats.FindDirect(ctx, "a", "z")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListForUserOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	chats, msgs := s.Chats(), s.Messages()

	for _, c := range []*model.Chat{
		direct("old", "a", "b", t0),
		direct("new", "a", "c", t0.Add(time.Minute)),
		direct("busy", "a", "d", t0.Add(-time.Hour)),
		direct("hidden", "a", "e", t0),
		direct("other", "x", "y", t0),
	} {
		_, err := chats.CreateDirect(ctx, c)
		require.NoError(t, err)
	}
	require.NoError(t, msgs.Create(ctx, msg("m1", "busy", "d", t0.Add(time.Hour))))
	require.NoError(t, chats.SetArchived(ctx, "hidden", "a", true, t0))

	list, total, err := chats.ListForUser(ctx, "a", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	ids := []string{list[0].ID, list[1].ID, list[2].ID}
	assert.Equal(t, []string{"busy", "new", "old"}, ids)

	page, total, err := chats.ListForUser(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "new", page[0].ID)
}

func TestRemoveParticipantDeactivatesAndPurgesArchive(t *testing.T) {
	ctx := context.Background()
	s := New()
	chats := s.Chats()
	_, err := chats.CreateDirect(ctx, direct("c1", "a", "b", t0))
	require.NoError(t, err)
	require.NoError(t, chats.SetArchived(ctx, "c1", "a", true, t0))
	require.NoError(t, chats.SetArchived(ctx, "c1", "a", true, t0))

	c, err := chats.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.ArchivedBy)

	require.NoError(t, chats.RemoveParticipant(ctx, "c1", "a", t0))
	c, err = chats.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, c.Participants)
	assert.Empty(t, c.ArchivedBy)
	assert.True(t, c.IsActive)

	require.NoError(t, chats.RemoveParticipant(ctx, "c1", "b", t0))
	c, err = chats.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, c.IsActive)
}

func TestMessagesListLatestAndReceipts(t *testing.T) {
	ctx := context.Background()
	s := New()
	chats, msgs := s.Chats(), s.Messages()
	_, err := chats.CreateDirect(ctx, direct("c1", "a", "b", t0))
	require.NoError(t, err)

	require.NoError(t, msgs.Create(ctx, msg("m1", "c1", "a", t0.Add(1*time.Second))))
	require.NoError(t, msgs.Create(ctx, msg("m2", "c1", "b", t0.Add(2*time.Second))))
	require.NoError(t, msgs.Create(ctx, msg("m3", "c1", "b", t0.Add(3*time.Second))))

	c, err := chats.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, c.LastMessageID)
	assert.Equal(t, "m3", *c.LastMessageID)

	require.NoError(t, msgs.SoftDelete(ctx, "m3", t0))
	list, total, err := msgs.ListByChat(ctx, "c1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "m2", list[0].ID)

	latest, err := msgs.Latest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "m2", latest.ID)

	deleted, err := msgs.GetByID(ctx, "m3")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	unread, err := msgs.CountUnread(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	n, err := msgs.MarkRead(ctx, "c1", "a", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = msgs.MarkRead(ctx, "c1", "a", t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	unread, err = msgs.CountUnread(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, unread)

	m1, err := msgs.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, m1.ReadBy)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Chats().CreateDirect(ctx, direct("c1", "a", "b", t0))
	require.NoError(t, err)

	c, err := s.Chats().GetByID(ctx, "c1")
	require.NoError(t, err)
	c.Participants[0] = "mallory"

	again, err := s.Chats().GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Participants[0])
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.AddUser(model.UserProfile{ID: "a", FName: "Asha"})

	p, err := s.GetProfile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Asha", p.FName)

	_, err = s.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	m, err := s.GetProfiles(ctx, []string{"a", "nobody"})
	require.NoError(t, err)
	assert.Len(t, m, 1)
}
